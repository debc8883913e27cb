package models

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/google/uuid"
)

const deliveryIdAttempts = 5

type Delivery struct {
	ID                int              `gorm:"primary_key" json:"id"`
	DeliveryId        string           `gorm:"size:20;not null;uniqueIndex" json:"delivery_id"`
	DeliveryAgent     string           `gorm:"size:100;not null;index" json:"delivery_agent"`
	Status            DeliveryStatus   `gorm:"size:30;not null;default:PENDING;index" json:"status"`
	Priority          DeliveryPriority `gorm:"size:20;not null;default:STANDARD" json:"priority"`
	ScheduledDate     Date             `gorm:"type:date;not null" json:"scheduled_date"`
	AssignedAt        *time.Time       `json:"assigned_at"`
	DeliveredAt       *time.Time       `gorm:"index" json:"delivered_at"`
	CustomerName      string           `gorm:"size:100" json:"customer_name"`
	CustomerAddress   string           `gorm:"type:text" json:"customer_address"`
	CustomerPhone     string           `gorm:"size:20" json:"customer_phone"`
	CustomerSignature []byte           `gorm:"type:longblob" json:"-"`
	Notes             string           `gorm:"type:text" json:"notes"`
	StatusReason      string           `gorm:"size:255" json:"status_reason"`
	Version           int              `gorm:"not null;default:0" json:"-"`
	Items             []DeliveryItem   `gorm:"foreignKey:DeliveryID" json:"items"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type DeliveryItem struct {
	ID         int      `gorm:"primary_key" json:"id"`
	DeliveryID int      `gorm:"not null;index" json:"delivery_id"`
	ProductId  int      `gorm:"not null;index" json:"product_id"`
	Product    *Product `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Quantity   int      `gorm:"not null" json:"quantity"`
	IsDamaged  *bool    `gorm:"not null;default:false" json:"is_damaged"`
}

type NewDeliveryItem struct {
	ProductSku string `json:"product_sku" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
}

type NewDelivery struct {
	DeliveryAgent   string            `json:"delivery_agent" binding:"required"`
	Items           []NewDeliveryItem `json:"items" binding:"required,min=1"`
	Priority        *DeliveryPriority `json:"priority"`
	ScheduledDate   *Date             `json:"scheduled_date"`
	CustomerName    string            `json:"customer_name"`
	CustomerAddress string            `json:"customer_address"`
	CustomerPhone   string            `json:"customer_phone"`
	Notes           string            `json:"notes"`
}

// StatusUpdate is the shared status-change payload for operator and agent
// paths. Blank reason/notes keep the stored values.
type StatusUpdate struct {
	Status          DeliveryStatus `json:"status" binding:"required"`
	StatusReason    string         `json:"status_reason"`
	Notes           string         `json:"notes"`
	SignatureBase64 string         `json:"signature_base64"`
	CustomerName    string         `json:"customer_name"`
}

func generateDeliveryId() string {
	return "DLV-" + strings.ToUpper(uuid.NewString()[:8])
}

// ProductPriority ranks a single product for dispatch urgency.
func ProductPriority(product *Product, today Date) DeliveryPriority {
	if product.Category == CategoryPharmaceutical {
		return PriorityEmergency
	}
	if utils.DereferencePtr(product.IsPerishable) ||
		(product.ExpiryDate != nil && product.ExpiryDate.Before(today.AddDays(3))) {
		return PriorityPerishable
	}
	switch product.Category {
	case CategoryFoodBeverages, CategoryHealthBeauty, CategoryFreshProduce, CategoryFrozenGoods:
		return PriorityEssential
	}
	return PriorityStandard
}

// DerivePriority picks the most urgent product priority across the set.
func DerivePriority(products []*Product, today Date) DeliveryPriority {
	highest := PriorityStandard
	for _, product := range products {
		if p := ProductPriority(product, today); p.Level() < highest.Level() {
			highest = p
		}
	}
	return highest
}

// CreateDelivery reserves stock for every item, records DELIVERY movements
// and creates the delivery with a fresh DLV id, all in one transaction.
// Any failing item rolls back the whole delivery.
func CreateDelivery(ctx context.Context, input *NewDelivery) (*Delivery, error) {
	if input.Priority != nil && !input.Priority.IsValid() {
		return nil, utils.ValidationError("delivery priority %q is not valid", *input.Priority)
	}

	displayName := ResolveAgentDisplayName(ctx, input.DeliveryAgent)

	scheduledDate := Today()
	if input.ScheduledDate != nil {
		scheduledDate = *input.ScheduledDate
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	// Resolve products up front so priority derivation and stock checks
	// see the same rows the item loop writes. Items may repeat a SKU, so
	// each SKU is loaded once and checked against the combined quantity.
	productsBySku := make(map[string]*Product, len(input.Items))
	requested := make(map[string]int, len(input.Items))
	products := make([]*Product, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			tx.Rollback()
			return nil, utils.ValidationError("item quantity must be positive")
		}
		product, ok := productsBySku[item.ProductSku]
		if !ok {
			var loaded Product
			if err := tx.Where("sku = ?", item.ProductSku).First(&loaded).Error; err != nil {
				tx.Rollback()
				return nil, utils.NotFoundError("product not found: %s", item.ProductSku)
			}
			product = &loaded
			productsBySku[item.ProductSku] = product
			products = append(products, product)
		}
		requested[item.ProductSku] += item.Quantity
		if product.Quantity < requested[item.ProductSku] {
			tx.Rollback()
			return nil, utils.InsufficientStockError("insufficient stock for product: %s", product.Name)
		}
	}

	priority := DerivePriority(products, Today())
	if input.Priority != nil {
		priority = *input.Priority
	}

	delivery := Delivery{
		DeliveryAgent:   displayName,
		Status:          StatusPending,
		Priority:        priority,
		ScheduledDate:   scheduledDate,
		CustomerName:    input.CustomerName,
		CustomerAddress: input.CustomerAddress,
		CustomerPhone:   input.CustomerPhone,
		Notes:           input.Notes,
	}

	// The delivery id carries a unique index; on the rare collision we
	// regenerate instead of failing the request.
	var created bool
	for attempt := 0; attempt < deliveryIdAttempts; attempt++ {
		delivery.DeliveryId = generateDeliveryId()
		err := tx.Create(&delivery).Error
		if err == nil {
			created = true
			break
		}
		if !isDuplicateKeyError(err) {
			tx.Rollback()
			return nil, utils.ProcessingError("failed to create delivery", err)
		}
	}
	if !created {
		tx.Rollback()
		return nil, utils.ProcessingError("failed to allocate delivery id", nil)
	}

	for _, item := range input.Items {
		product := productsBySku[item.ProductSku]
		deliveryItem := DeliveryItem{
			DeliveryID: delivery.ID,
			ProductId:  product.ID,
			Quantity:   item.Quantity,
			IsDamaged:  utils.NewFalse(),
		}
		if err := tx.Create(&deliveryItem).Error; err != nil {
			tx.Rollback()
			return nil, utils.ProcessingError("failed to create delivery item", err)
		}
		if err := recordMovementTx(tx, product, MovementDelivery, item.Quantity, "Delivery assignment", delivery.DeliveryId, displayName); err != nil {
			tx.Rollback()
			return nil, utils.ProcessingError("failed to record delivery movement", err)
		}
		deliveryItem.Product = product
		delivery.Items = append(delivery.Items, deliveryItem)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return &delivery, nil
}

// apply mutates the delivery per the shared status-change rules. It does
// not persist; callers run the optimistic write afterwards.
func (d *Delivery) apply(update *StatusUpdate, now time.Time, logDecodeFailure func(error)) {
	d.Status = update.Status

	if reason := strings.TrimSpace(update.StatusReason); reason != "" {
		d.StatusReason = reason
	}
	if notes := strings.TrimSpace(update.Notes); notes != "" {
		d.Notes = notes
	}
	if update.CustomerName != "" {
		d.CustomerName = update.CustomerName
	}

	if update.Status == StatusDelivered {
		if signature := strings.TrimSpace(update.SignatureBase64); signature != "" {
			decoded, err := base64.StdEncoding.DecodeString(signature)
			if err != nil {
				// A bad signature never blocks the delivery confirmation.
				if logDecodeFailure != nil {
					logDecodeFailure(err)
				}
			} else {
				d.CustomerSignature = decoded
			}
		}
	}

	// Milestones are stamped on first entry only.
	if d.Status == StatusAssigned && d.AssignedAt == nil {
		d.AssignedAt = &now
	}
	if d.Status == StatusDelivered && d.DeliveredAt == nil {
		d.DeliveredAt = &now
	}
}

// persistStatus writes the mutated delivery guarded by the version column.
// A concurrent writer that got there first surfaces as Conflict.
func (d *Delivery) persistStatus(ctx context.Context) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Delivery{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(map[string]interface{}{
			"Status":            d.Status,
			"StatusReason":      d.StatusReason,
			"Notes":             d.Notes,
			"CustomerName":      d.CustomerName,
			"CustomerSignature": d.CustomerSignature,
			"AssignedAt":        d.AssignedAt,
			"DeliveredAt":       d.DeliveredAt,
			"Version":           d.Version + 1,
		})
	if result.Error != nil {
		return utils.ProcessingError("failed to update delivery status", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ConflictError("delivery %s was modified concurrently", d.DeliveryId)
	}
	d.Version++
	return nil
}

// UpdateDeliveryStatus is the operator-side status change.
func UpdateDeliveryStatus(ctx context.Context, id int, update *StatusUpdate) (*Delivery, error) {
	delivery, err := GetDeliveryById(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateStatusTransition(delivery.Status, update.Status); err != nil {
		return nil, utils.InvalidStatusError("%s", err.Error())
	}

	delivery.apply(update, time.Now(), func(decodeErr error) {
		config.LogError(config.GetLogger(), "delivery", "UpdateDeliveryStatus", "decode signature", delivery.DeliveryId, decodeErr)
	})

	if err := delivery.persistStatus(ctx); err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return delivery, nil
}

// UpdateDeliveryByAgent is the agent-side status change. On top of the
// transition rules it rejects any delivery that already reached an
// end-of-attempt state.
func UpdateDeliveryByAgent(ctx context.Context, id int, agentUsername string, update *StatusUpdate) (*Delivery, error) {
	delivery, err := GetDeliveryByIdAndAgent(ctx, id, agentUsername)
	if err != nil {
		return nil, err
	}

	if delivery.Status.IsCompleted() {
		return nil, utils.InvalidStatusError("cannot update a completed delivery; current status: %s", delivery.Status)
	}
	if err := ValidateStatusTransition(delivery.Status, update.Status); err != nil {
		return nil, utils.InvalidStatusError("%s", err.Error())
	}

	delivery.apply(update, time.Now(), func(decodeErr error) {
		config.LogError(config.GetLogger(), "delivery", "UpdateDeliveryByAgent", "decode signature", delivery.DeliveryId, decodeErr)
	})

	if err := delivery.persistStatus(ctx); err != nil {
		return nil, err
	}
	invalidateDashboardStats()
	return delivery, nil
}

func GetDeliveryById(ctx context.Context, id int) (*Delivery, error) {
	db := config.GetDB()
	var delivery Delivery
	err := db.WithContext(ctx).Preload("Items.Product").First(&delivery, id).Error
	if err != nil {
		return nil, utils.NotFoundError("delivery not found with ID: %d", id)
	}
	return &delivery, nil
}

func GetAllDeliveries(ctx context.Context) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").Find(&deliveries).Error
	return deliveries, err
}

func GetDeliveriesByAgent(ctx context.Context, agent string) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("delivery_agent = ?", agent).
		Find(&deliveries).Error
	return deliveries, err
}

func GetPendingDeliveriesByAgent(ctx context.Context, agent string) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("status = ? AND delivery_agent = ?", StatusPending, agent).
		Find(&deliveries).Error
	return deliveries, err
}

func GetDeliveriesByStatus(ctx context.Context, status DeliveryStatus) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("status = ?", status).
		Find(&deliveries).Error
	return deliveries, err
}

func GetDamagedDeliveries(ctx context.Context) ([]*Delivery, error) {
	return GetDeliveriesByStatus(ctx, StatusDamagedTransit)
}

func GetDeliveriesByDateRange(ctx context.Context, start, end time.Time) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("created_at BETWEEN ? AND ?", start, end).
		Find(&deliveries).Error
	return deliveries, err
}

func GetDeliveredByDateRange(ctx context.Context, start, end time.Time) ([]*Delivery, error) {
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("status = ? AND delivered_at BETWEEN ? AND ?", StatusDelivered, start, end).
		Find(&deliveries).Error
	return deliveries, err
}

func GetDeliveriesByProductSku(ctx context.Context, sku string) ([]*Delivery, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&DeliveryItem{}).
		Joins("JOIN products ON products.id = delivery_items.product_id").
		Where("products.sku = ?", sku).
		Distinct("delivery_items.delivery_id").
		Pluck("delivery_items.delivery_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Delivery{}, nil
	}
	var deliveries []*Delivery
	err = db.WithContext(ctx).Preload("Items.Product").
		Where("id IN ?", ids).
		Find(&deliveries).Error
	return deliveries, err
}

// TrackDeliveries filters by SKU and/or a case-insensitive agent substring.
func TrackDeliveries(ctx context.Context, sku, agent string) ([]*Delivery, error) {
	sku = strings.TrimSpace(sku)
	agent = strings.ToLower(strings.TrimSpace(agent))

	var deliveries []*Delivery
	var err error
	if sku != "" {
		deliveries, err = GetDeliveriesByProductSku(ctx, sku)
	} else {
		deliveries, err = GetAllDeliveries(ctx)
	}
	if err != nil {
		return nil, err
	}
	if agent == "" {
		return deliveries, nil
	}

	filtered := make([]*Delivery, 0, len(deliveries))
	for _, delivery := range deliveries {
		if strings.Contains(strings.ToLower(delivery.DeliveryAgent), agent) {
			filtered = append(filtered, delivery)
		}
	}
	return filtered, nil
}

// GetTodaysDeliveries lists the agent's deliveries scheduled for today,
// most urgent first. Rows are matched against both identity names.
func GetTodaysDeliveries(ctx context.Context, agentUsername string) ([]*Delivery, error) {
	identity := LookupAgentIdentity(ctx, agentUsername)

	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("delivery_agent IN ? AND scheduled_date = ?", identity.Names(), Today().Time()).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	sortByPriority(deliveries)
	return deliveries, nil
}

// GetPendingDeliveriesForAgent lists open deliveries due today or earlier,
// most urgent first, oldest schedule first within a priority.
func GetPendingDeliveriesForAgent(ctx context.Context, agentUsername string) ([]*Delivery, error) {
	identity := LookupAgentIdentity(ctx, agentUsername)

	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("delivery_agent IN ? AND status IN ? AND scheduled_date <= ?",
			identity.Names(),
			[]DeliveryStatus{StatusPending, StatusAssigned, StatusInTransit},
			Today().Time()).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	sort.SliceStable(deliveries, func(i, j int) bool {
		if deliveries[i].Priority.Level() != deliveries[j].Priority.Level() {
			return deliveries[i].Priority.Level() < deliveries[j].Priority.Level()
		}
		return deliveries[i].ScheduledDate.Before(deliveries[j].ScheduledDate)
	})
	return deliveries, nil
}

// GetDeliveredDeliveriesForAgent lists completed drop-offs, most recent
// first. Rows without a delivered timestamp sort last.
func GetDeliveredDeliveriesForAgent(ctx context.Context, agentUsername string) ([]*Delivery, error) {
	identity := LookupAgentIdentity(ctx, agentUsername)

	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).Preload("Items.Product").
		Where("delivery_agent IN ? AND status = ?", identity.Names(), StatusDelivered).
		Order("delivered_at IS NULL, delivered_at DESC").
		Find(&deliveries).Error
	return deliveries, err
}

// GetDeliveryByIdAndAgent fetches a delivery only when it belongs to the
// requesting agent under either identity name.
func GetDeliveryByIdAndAgent(ctx context.Context, id int, agentUsername string) (*Delivery, error) {
	delivery, err := GetDeliveryById(ctx, id)
	if err != nil {
		return nil, err
	}

	identity := LookupAgentIdentity(ctx, agentUsername)
	if !identity.Matches(delivery.DeliveryAgent) {
		return nil, utils.NotFoundError("delivery not found with ID: %d", id)
	}
	return delivery, nil
}

// IsOverdue reports whether the delivery slipped past its scheduled date
// without reaching DELIVERED.
func IsOverdue(delivery *Delivery, today Date) bool {
	return delivery.ScheduledDate.Before(today) && delivery.Status != StatusDelivered
}

func sortByPriority(deliveries []*Delivery) {
	sort.SliceStable(deliveries, func(i, j int) bool {
		return deliveries[i].Priority.Level() < deliveries[j].Priority.Level()
	})
}

// BackfillAgentDisplayNames rewrites delivery rows still keyed by login id
// to the agent's display name. It is idempotent and safe to re-run; a
// Redis lock keeps concurrent runs from stepping on each other, but a
// failed lock only downgrades to a warning.
func BackfillAgentDisplayNames(ctx context.Context) (int, error) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "lock:agent-name-backfill", 30*time.Second, nil)
		if err != nil {
			config.LogError(config.GetLogger(), "delivery", "BackfillAgentDisplayNames", "obtain lock", nil, err)
		} else {
			defer lock.Release(ctx)
		}
	}

	db := config.GetDB()
	var deliveries []*Delivery
	// Rows still keyed by a login id are exactly the ones whose agent
	// matches a username.
	if err := db.WithContext(ctx).
		Where("delivery_agent IN (?)", db.Model(&User{}).Select("username")).
		Find(&deliveries).Error; err != nil {
		return 0, err
	}

	updated := 0
	for _, delivery := range deliveries {
		displayName := ResolveAgentDisplayName(ctx, delivery.DeliveryAgent)
		if displayName == delivery.DeliveryAgent {
			continue
		}
		if err := db.WithContext(ctx).Model(delivery).
			Update("DeliveryAgent", displayName).Error; err != nil {
			config.LogError(config.GetLogger(), "delivery", "BackfillAgentDisplayNames", "update row", delivery.DeliveryId, err)
			continue
		}
		updated++
	}
	return updated, nil
}
