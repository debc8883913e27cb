package models

import (
	"encoding/base64"
	"time"
)

// DeliveryItemView flattens an item with its product identifiers for the
// API payloads.
type DeliveryItemView struct {
	ID          int    `json:"id"`
	ProductSku  string `json:"product_sku"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	IsDamaged   bool   `json:"is_damaged"`
}

// DeliveryView is the operator-facing projection. The stored signature
// bytes are rendered back to base64.
type DeliveryView struct {
	ID                int                `json:"id"`
	DeliveryId        string             `json:"delivery_id"`
	DeliveryAgent     string             `json:"delivery_agent"`
	Status            DeliveryStatus     `json:"status"`
	Priority          DeliveryPriority   `json:"priority"`
	ScheduledDate     Date               `json:"scheduled_date"`
	AssignedAt        *time.Time         `json:"assigned_at"`
	DeliveredAt       *time.Time         `json:"delivered_at"`
	CustomerName      string             `json:"customer_name"`
	CustomerAddress   string             `json:"customer_address"`
	CustomerPhone     string             `json:"customer_phone"`
	CustomerSignature string             `json:"customer_signature,omitempty"`
	Notes             string             `json:"notes"`
	StatusReason      string             `json:"status_reason"`
	Items             []DeliveryItemView `json:"items"`
	CreatedAt         time.Time          `json:"created_at"`
}

// AgentDeliveryView is the agent-facing projection with the derived
// overdue flag.
type AgentDeliveryView struct {
	ID                  int                `json:"id"`
	DeliveryId          string             `json:"delivery_id"`
	Status              DeliveryStatus     `json:"status"`
	Priority            DeliveryPriority   `json:"priority"`
	PriorityDescription string             `json:"priority_description"`
	ScheduledDate       Date               `json:"scheduled_date"`
	AssignedAt          *time.Time         `json:"assigned_at"`
	CustomerName        string             `json:"customer_name"`
	CustomerAddress     string             `json:"customer_address"`
	CustomerPhone       string             `json:"customer_phone"`
	Notes               string             `json:"notes"`
	StatusReason        string             `json:"status_reason"`
	Overdue             bool               `json:"overdue"`
	TotalItems          int                `json:"total_items"`
	Items               []DeliveryItemView `json:"items"`
}

func itemViews(items []DeliveryItem) []DeliveryItemView {
	views := make([]DeliveryItemView, 0, len(items))
	for _, item := range items {
		view := DeliveryItemView{
			ID:        item.ID,
			Quantity:  item.Quantity,
			IsDamaged: item.IsDamaged != nil && *item.IsDamaged,
		}
		if item.Product != nil {
			view.ProductSku = item.Product.Sku
			view.ProductName = item.Product.Name
		}
		views = append(views, view)
	}
	return views
}

func NewDeliveryView(delivery *Delivery) *DeliveryView {
	view := &DeliveryView{
		ID:              delivery.ID,
		DeliveryId:      delivery.DeliveryId,
		DeliveryAgent:   delivery.DeliveryAgent,
		Status:          delivery.Status,
		Priority:        delivery.Priority,
		ScheduledDate:   delivery.ScheduledDate,
		AssignedAt:      delivery.AssignedAt,
		DeliveredAt:     delivery.DeliveredAt,
		CustomerName:    delivery.CustomerName,
		CustomerAddress: delivery.CustomerAddress,
		CustomerPhone:   delivery.CustomerPhone,
		Notes:           delivery.Notes,
		StatusReason:    delivery.StatusReason,
		Items:           itemViews(delivery.Items),
		CreatedAt:       delivery.CreatedAt,
	}
	if len(delivery.CustomerSignature) > 0 {
		view.CustomerSignature = base64.StdEncoding.EncodeToString(delivery.CustomerSignature)
	}
	return view
}

func NewDeliveryViews(deliveries []*Delivery) []*DeliveryView {
	views := make([]*DeliveryView, 0, len(deliveries))
	for _, delivery := range deliveries {
		views = append(views, NewDeliveryView(delivery))
	}
	return views
}

func NewAgentDeliveryView(delivery *Delivery, today Date) *AgentDeliveryView {
	return &AgentDeliveryView{
		ID:                  delivery.ID,
		DeliveryId:          delivery.DeliveryId,
		Status:              delivery.Status,
		Priority:            delivery.Priority,
		PriorityDescription: delivery.Priority.Description(),
		ScheduledDate:       delivery.ScheduledDate,
		AssignedAt:          delivery.AssignedAt,
		CustomerName:        delivery.CustomerName,
		CustomerAddress:     delivery.CustomerAddress,
		CustomerPhone:       delivery.CustomerPhone,
		Notes:               delivery.Notes,
		StatusReason:        delivery.StatusReason,
		Overdue:             IsOverdue(delivery, today),
		TotalItems:          len(delivery.Items),
		Items:               itemViews(delivery.Items),
	}
}

func NewAgentDeliveryViews(deliveries []*Delivery, today Date) []*AgentDeliveryView {
	views := make([]*AgentDeliveryView, 0, len(deliveries))
	for _, delivery := range deliveries {
		views = append(views, NewAgentDeliveryView(delivery, today))
	}
	return views
}
