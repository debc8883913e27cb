package models

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Sku          string          `gorm:"size:20;not null;uniqueIndex" json:"sku"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Category     ProductCategory `gorm:"size:30;not null;index" json:"category"`
	Quantity     int             `gorm:"not null;default:0" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	IsDamaged    *bool           `gorm:"not null;default:false" json:"is_damaged"`
	IsPerishable *bool           `gorm:"not null;default:false" json:"is_perishable"`
	ExpiryDate   *Date           `gorm:"type:date" json:"expiry_date"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	Category     ProductCategory `json:"category" binding:"required"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	IsDamaged    *bool           `json:"is_damaged"`
	IsPerishable *bool           `json:"is_perishable"`
	ExpiryDate   *Date           `json:"expiry_date"`
}

func (input *NewProduct) validate() error {
	if !input.Category.IsValid() {
		return utils.ValidationError("product category %q is not valid", input.Category)
	}
	if input.Quantity < 0 {
		return utils.ValidationError("product quantity cannot be negative")
	}
	return nil
}

// nextSkuForCategory allocates the next SKU for the category prefix by
// parsing the numeric suffix of the highest existing SKU. Runs inside the
// caller's transaction so concurrent creates collide on the unique index
// instead of silently duplicating.
func nextSkuForCategory(tx *gorm.DB, category ProductCategory) (string, error) {
	prefix := category.SkuPrefix()

	var lastSku string
	err := tx.Model(&Product{}).
		Where("sku LIKE ?", prefix+"-%").
		Order("sku DESC").
		Limit(1).
		Pluck("sku", &lastSku).Error
	if err != nil {
		return "", err
	}

	nextNumber := 1
	if lastSku != "" {
		if n, convErr := strconv.Atoi(strings.TrimPrefix(lastSku, prefix+"-")); convErr == nil {
			nextNumber = n + 1
		}
	}

	return fmt.Sprintf("%s-%04d", prefix, nextNumber), nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	performedBy := performerFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	sku, err := nextSkuForCategory(tx, input.Category)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	product := Product{
		Sku:          sku,
		Name:         input.Name,
		Description:  input.Description,
		Category:     input.Category,
		Quantity:     0,
		UnitPrice:    input.UnitPrice,
		IsDamaged:    boolOrDefault(input.IsDamaged, false),
		IsPerishable: boolOrDefault(input.IsPerishable, false),
		ExpiryDate:   input.ExpiryDate,
	}
	if err := tx.Create(&product).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("sku %s already allocated", sku)
		}
		return nil, err
	}

	if err := recordMovementTx(tx, &product, MovementIn, input.Quantity, "Initial stock", "INITIAL", performedBy); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, utils.NotFoundError("product not found")
	}

	performedBy := performerFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	// A quantity change is itself a ledger event, recorded before the
	// remaining fields are written.
	if product.Quantity != input.Quantity {
		diff := input.Quantity - product.Quantity
		movementType := MovementIn
		if diff < 0 {
			movementType = MovementOut
			diff = -diff
		}
		if err := recordMovementTx(tx, product, movementType, diff, "Quantity adjustment", "ADJUSTMENT", performedBy); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(product).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Description":  input.Description,
		"Category":     input.Category,
		"Quantity":     input.Quantity,
		"UnitPrice":    input.UnitPrice,
		"IsDamaged":    boolOrDefault(input.IsDamaged, false),
		"IsPerishable": boolOrDefault(input.IsPerishable, false),
		"ExpiryDate":   input.ExpiryDate,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, utils.NotFoundError("product not found")
	}

	referenced, err := utils.ResourceCountWhere[DeliveryItem](ctx, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if referenced > 0 {
		return nil, utils.ConflictError("product %s is referenced by %d delivery item(s)", product.Sku, referenced)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	if err := tx.Where("product_id = ?", id).Delete(&InventoryMovement{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return product, nil
}

func GetAllProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}

func GetAvailableProducts(ctx context.Context) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	err := db.WithContext(ctx).Where("quantity > 0").Find(&products).Error
	return products, err
}

func GetProductBySku(ctx context.Context, sku string) (*Product, error) {
	db := config.GetDB()
	var product Product
	err := db.WithContext(ctx).Where("sku = ?", sku).First(&product).Error
	if err != nil {
		return nil, utils.NotFoundError("product not found with SKU: %s", sku)
	}
	return &product, nil
}

func GetProductsByCategory(ctx context.Context, category ProductCategory) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	err := db.WithContext(ctx).Where("category = ?", category).Find(&products).Error
	return products, err
}

func GetLowStockProducts(ctx context.Context, threshold int) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	err := db.WithContext(ctx).Where("quantity <= ?", threshold).Find(&products).Error
	return products, err
}

func GetExpiringProducts(ctx context.Context, before Date) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	err := db.WithContext(ctx).
		Where("is_perishable = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", true, before.Time()).
		Find(&products).Error
	return products, err
}

func GetAllSkus(ctx context.Context) ([]string, error) {
	db := config.GetDB()
	var skus []string
	err := db.WithContext(ctx).Model(&Product{}).
		Distinct("sku").
		Order("sku").
		Pluck("sku", &skus).Error
	return skus, err
}

func boolOrDefault(b *bool, def bool) *bool {
	if b != nil {
		return b
	}
	return &def
}

func performerFromContext(ctx context.Context) string {
	if name, ok := utils.GetUserNameFromContext(ctx); ok && name != "" {
		return name
	}
	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		return username
	}
	return "System"
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
