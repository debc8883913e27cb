package models

import (
	"context"
	"time"

	"github.com/dlvery/dlvery_backend/config"
)

const dashboardStatsCacheKey = "DashboardStats"
const dashboardStatsCacheTTL = 60 * time.Second

type DashboardStats struct {
	TotalProducts       int64            `json:"total_products"`
	AvailableProducts   int64            `json:"available_products"`
	DamagedProducts     int64            `json:"damaged_products"`
	ExpiringProducts    int64            `json:"expiring_products"`
	PendingDeliveries   int64            `json:"pending_deliveries"`
	CompletedDeliveries int64            `json:"completed_deliveries"`
	ProductsByCategory  map[string]int64 `json:"products_by_category"`
}

// GetDashboardStats aggregates inventory and delivery counters. Results are
// cached in Redis for 60 seconds; writes that change the counters drop the
// cache eagerly.
func GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var cached DashboardStats
	if hit, err := config.GetRedisObject(dashboardStatsCacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	db := config.GetDB().WithContext(ctx)
	stats := DashboardStats{ProductsByCategory: map[string]int64{}}

	if err := db.Model(&Product{}).Count(&stats.TotalProducts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Product{}).Where("quantity > 0").Count(&stats.AvailableProducts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Product{}).Where("is_damaged = ?", true).Count(&stats.DamagedProducts).Error; err != nil {
		return nil, err
	}
	expiryCutoff := Today().AddDays(7)
	if err := db.Model(&Product{}).
		Where("is_perishable = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", true, expiryCutoff.Time()).
		Count(&stats.ExpiringProducts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Delivery{}).Where("status = ?", StatusPending).Count(&stats.PendingDeliveries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Delivery{}).Where("status = ?", StatusDelivered).Count(&stats.CompletedDeliveries).Error; err != nil {
		return nil, err
	}

	type categoryCount struct {
		Category string
		Count    int64
	}
	var rows []categoryCount
	if err := db.Model(&Product{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ProductsByCategory[row.Category] = row.Count
	}

	if err := config.SetRedisObject(dashboardStatsCacheKey, &stats, dashboardStatsCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "dashboard", "GetDashboardStats", "cache stats", nil, err)
	}
	return &stats, nil
}

func invalidateDashboardStats() {
	if err := config.RemoveRedisKey(dashboardStatsCacheKey); err != nil {
		config.LogError(config.GetLogger(), "dashboard", "invalidateDashboardStats", "drop cache", nil, err)
	}
}
