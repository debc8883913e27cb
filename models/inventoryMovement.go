package models

import (
	"context"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"gorm.io/gorm"
)

type InventoryMovement struct {
	ID           int          `gorm:"primary_key" json:"id"`
	ProductId    int          `gorm:"not null;index" json:"product_id"`
	Product      *Product     `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	MovementType MovementType `gorm:"size:10;not null" json:"movement_type"`
	Quantity     int          `gorm:"not null" json:"quantity"`
	Reason       string       `gorm:"size:255" json:"reason"`
	Reference    string       `gorm:"size:255" json:"reference"`
	PerformedBy  string       `gorm:"size:100" json:"performed_by"`
	MovementDate time.Time    `gorm:"not null;autoCreateTime" json:"movement_date"`
}

type NewMovement struct {
	MovementType MovementType `json:"movement_type" binding:"required"`
	Quantity     int          `json:"quantity" binding:"required"`
	Reason       string       `json:"reason"`
	Reference    string       `json:"reference"`
}

// recordMovementTx appends a ledger row and applies its signed effect to
// the product quantity, both inside the caller's transaction. The write is
// relative so stacked movements against the same row compose instead of
// overwriting each other. The ledger has no lower bound; stock checks
// belong to the callers that need them.
func recordMovementTx(tx *gorm.DB, product *Product, movementType MovementType, quantity int, reason, reference, performedBy string) error {
	movement := InventoryMovement{
		ProductId:    product.ID,
		MovementType: movementType,
		Quantity:     quantity,
		Reason:       reason,
		Reference:    reference,
		PerformedBy:  performedBy,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return err
	}

	delta := movementType.QuantityDelta(quantity)
	product.Quantity += delta
	return tx.Model(product).Update("Quantity", gorm.Expr("quantity + ?", delta)).Error
}

// RecordMovementBySku records a manual stock movement against a product.
func RecordMovementBySku(ctx context.Context, sku string, input *NewMovement) (*Product, error) {
	if !input.MovementType.IsValid() {
		return nil, utils.ValidationError("movement type %q is not valid", input.MovementType)
	}
	if input.Quantity <= 0 {
		return nil, utils.ValidationError("movement quantity must be positive")
	}

	product, err := GetProductBySku(ctx, sku)
	if err != nil {
		return nil, err
	}

	performedBy := performerFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	if err := recordMovementTx(tx, product, input.MovementType, input.Quantity, input.Reason, input.Reference, performedBy); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return product, nil
}

func GetMovementHistory(ctx context.Context, sku string) ([]*InventoryMovement, error) {
	product, err := GetProductBySku(ctx, sku)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var movements []*InventoryMovement
	err = db.WithContext(ctx).
		Preload("Product").
		Where("product_id = ?", product.ID).
		Order("movement_date DESC").
		Find(&movements).Error
	return movements, err
}
