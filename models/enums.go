package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type ProductCategory string

const (
	CategoryElectronics    ProductCategory = "ELECTRONICS"
	CategoryClothing       ProductCategory = "CLOTHING"
	CategoryFoodBeverages  ProductCategory = "FOOD_BEVERAGES"
	CategoryHomeGarden     ProductCategory = "HOME_GARDEN"
	CategoryBooks          ProductCategory = "BOOKS"
	CategoryToysGames      ProductCategory = "TOYS_GAMES"
	CategoryHealthBeauty   ProductCategory = "HEALTH_BEAUTY"
	CategorySportsOutdoors ProductCategory = "SPORTS_OUTDOORS"
	CategoryAutomotive     ProductCategory = "AUTOMOTIVE"
	CategoryOfficeSupplies ProductCategory = "OFFICE_SUPPLIES"
	CategoryPharmaceutical ProductCategory = "PHARMACEUTICALS"
	CategoryFrozenGoods    ProductCategory = "FROZEN_GOODS"
	CategoryFreshProduce   ProductCategory = "FRESH_PRODUCE"
	CategoryOther          ProductCategory = "OTHER"
)

// skuPrefixes maps a category to the 4-letter prefix used when allocating
// SKUs. Unknown categories fall back to OTHR.
var skuPrefixes = map[ProductCategory]string{
	CategoryElectronics:    "ELEC",
	CategoryClothing:       "CLTH",
	CategoryFoodBeverages:  "FOOD",
	CategoryHomeGarden:     "HOME",
	CategoryBooks:          "BOOK",
	CategoryToysGames:      "TOYS",
	CategoryHealthBeauty:   "HLTH",
	CategorySportsOutdoors: "SPRT",
	CategoryAutomotive:     "AUTO",
	CategoryOfficeSupplies: "OFFC",
	CategoryPharmaceutical: "PHRM",
	CategoryFrozenGoods:    "FRZN",
	CategoryFreshProduce:   "FRSH",
	CategoryOther:          "OTHR",
}

func (c ProductCategory) IsValid() bool {
	_, ok := skuPrefixes[c]
	return ok
}

func (c ProductCategory) SkuPrefix() string {
	if prefix, ok := skuPrefixes[c]; ok {
		return prefix
	}
	return "OTHR"
}

func AllProductCategories() []ProductCategory {
	return []ProductCategory{
		CategoryElectronics, CategoryClothing, CategoryFoodBeverages,
		CategoryHomeGarden, CategoryBooks, CategoryToysGames,
		CategoryHealthBeauty, CategorySportsOutdoors, CategoryAutomotive,
		CategoryOfficeSupplies, CategoryPharmaceutical, CategoryFrozenGoods,
		CategoryFreshProduce, CategoryOther,
	}
}

type MovementType string

const (
	MovementIn       MovementType = "IN"
	MovementOut      MovementType = "OUT"
	MovementDelivery MovementType = "DELIVERY"
)

func (m MovementType) IsValid() bool {
	switch m {
	case MovementIn, MovementOut, MovementDelivery:
		return true
	}
	return false
}

// QuantityDelta returns the signed effect of a movement of the given size
// on the product quantity. IN adds, OUT and DELIVERY subtract.
func (m MovementType) QuantityDelta(quantity int) int {
	if m == MovementIn {
		return quantity
	}
	return -quantity
}

type DeliveryStatus string

const (
	StatusPending        DeliveryStatus = "PENDING"
	StatusAssigned       DeliveryStatus = "ASSIGNED"
	StatusInTransit      DeliveryStatus = "IN_TRANSIT"
	StatusDelivered      DeliveryStatus = "DELIVERED"
	StatusDoorLocked     DeliveryStatus = "DOOR_LOCKED"
	StatusDamagedTransit DeliveryStatus = "DAMAGED_IN_TRANSIT"
	StatusReturned       DeliveryStatus = "RETURNED"
	StatusCancelled      DeliveryStatus = "CANCELLED"
)

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInTransit, StatusDelivered,
		StatusDoorLocked, StatusDamagedTransit, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// IsCompleted reports whether the delivery reached an end-of-attempt state.
// Agents may no longer touch a completed delivery. CANCELLED is terminal
// for the state machine but is not an attempt outcome, so it is excluded.
func (s DeliveryStatus) IsCompleted() bool {
	switch s {
	case StatusDelivered, StatusReturned, StatusDamagedTransit, StatusDoorLocked:
		return true
	}
	return false
}

// ValidateStatusTransition enforces the delivery state machine.
// DELIVERED only allows the idempotent self-transition; CANCELLED allows
// nothing outbound.
func ValidateStatusTransition(current, target DeliveryStatus) error {
	if !target.IsValid() {
		return fmt.Errorf("unknown delivery status %q", target)
	}
	switch current {
	case StatusDelivered:
		if target != StatusDelivered {
			return fmt.Errorf("delivery already completed; cannot change status from %s to %s", current, target)
		}
		return nil
	case StatusCancelled:
		return fmt.Errorf("delivery is cancelled; cannot change status to %s", target)
	}
	return nil
}

type DeliveryPriority string

const (
	PriorityEmergency  DeliveryPriority = "EMERGENCY"
	PriorityPerishable DeliveryPriority = "PERISHABLE"
	PriorityEssential  DeliveryPriority = "ESSENTIAL"
	PriorityStandard   DeliveryPriority = "STANDARD"
	PriorityLow        DeliveryPriority = "LOW"
)

func (p DeliveryPriority) IsValid() bool {
	switch p {
	case PriorityEmergency, PriorityPerishable, PriorityEssential, PriorityStandard, PriorityLow:
		return true
	}
	return false
}

// Level returns the urgency rank; lower sorts first.
func (p DeliveryPriority) Level() int {
	switch p {
	case PriorityEmergency:
		return 1
	case PriorityPerishable:
		return 2
	case PriorityEssential:
		return 3
	case PriorityStandard:
		return 4
	case PriorityLow:
		return 5
	}
	return 4
}

func (p DeliveryPriority) Description() string {
	switch p {
	case PriorityEmergency:
		return "Emergency"
	case PriorityPerishable:
		return "Perishable"
	case PriorityEssential:
		return "Essential"
	case PriorityStandard:
		return "Standard"
	case PriorityLow:
		return "Low Priority"
	}
	return "Standard"
}

type UserRole string

const (
	RoleInventoryTeam UserRole = "INV_TEAM"
	RoleDeliveryTeam  UserRole = "DL_TEAM"
)

type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
)

// Date is a calendar date without a time component, stored as a MySQL DATE
// column and rendered as "2006-01-02" in JSON.
type Date time.Time

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) Time() time.Time {
	t := time.Time(d)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

func (d Date) Equal(other Date) bool {
	return d.Time().Equal(other.Time())
}

func (d Date) AddDays(days int) Date {
	return Date(d.Time().AddDate(0, 0, days))
}

func (d Date) IsZero() bool {
	return time.Time(d).IsZero()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	str, err := strconv.Unquote(string(data))
	if err != nil {
		return errors.New("date must be a string")
	}
	parsed, err := time.Parse(dateLayout, str)
	if err != nil {
		return fmt.Errorf("date must be in %s format", dateLayout)
	}
	*d = Date(parsed)
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time(), nil
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case []byte:
		parsed, err := time.Parse(dateLayout, string(v))
		if err != nil {
			return err
		}
		*d = Date(parsed)
		return nil
	case string:
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return err
		}
		*d = Date(parsed)
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", value)
}

func (Date) GormDataType() string {
	return "date"
}
