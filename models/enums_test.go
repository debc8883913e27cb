package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dlvery/dlvery_backend/models"
)

func TestValidateStatusTransition(t *testing.T) {
	cases := []struct {
		name    string
		current models.DeliveryStatus
		target  models.DeliveryStatus
		wantErr bool
	}{
		{"pending to assigned", models.StatusPending, models.StatusAssigned, false},
		{"assigned to in transit", models.StatusAssigned, models.StatusInTransit, false},
		{"in transit to delivered", models.StatusInTransit, models.StatusDelivered, false},
		{"in transit to door locked", models.StatusInTransit, models.StatusDoorLocked, false},
		{"door locked back to in transit", models.StatusDoorLocked, models.StatusInTransit, false},
		{"pending to cancelled", models.StatusPending, models.StatusCancelled, false},
		{"delivered self transition", models.StatusDelivered, models.StatusDelivered, false},
		{"delivered to returned", models.StatusDelivered, models.StatusReturned, true},
		{"delivered back to pending", models.StatusDelivered, models.StatusPending, true},
		{"cancelled to pending", models.StatusCancelled, models.StatusPending, true},
		{"cancelled to cancelled", models.StatusCancelled, models.StatusCancelled, true},
		{"unknown target", models.StatusPending, models.DeliveryStatus("LOST"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := models.ValidateStatusTransition(tc.current, tc.target)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %s -> %s", tc.current, tc.target)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %s -> %s: %v", tc.current, tc.target, err)
			}
		})
	}
}

func TestDeliveryStatusIsCompleted(t *testing.T) {
	completed := []models.DeliveryStatus{
		models.StatusDelivered, models.StatusReturned,
		models.StatusDamagedTransit, models.StatusDoorLocked,
	}
	for _, s := range completed {
		if !s.IsCompleted() {
			t.Errorf("%s should be completed", s)
		}
	}
	open := []models.DeliveryStatus{
		models.StatusPending, models.StatusAssigned,
		models.StatusInTransit, models.StatusCancelled,
	}
	for _, s := range open {
		if s.IsCompleted() {
			t.Errorf("%s should not be completed", s)
		}
	}
}

func TestDeliveryPriorityLevelOrdering(t *testing.T) {
	ordered := []models.DeliveryPriority{
		models.PriorityEmergency, models.PriorityPerishable,
		models.PriorityEssential, models.PriorityStandard, models.PriorityLow,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Level() >= ordered[i].Level() {
			t.Errorf("%s level %d should rank above %s level %d",
				ordered[i-1], ordered[i-1].Level(), ordered[i], ordered[i].Level())
		}
	}
	if models.DeliveryPriority("BOGUS").Level() != models.PriorityStandard.Level() {
		t.Error("unknown priority should rank as standard")
	}
}

func TestMovementTypeQuantityDelta(t *testing.T) {
	if got := models.MovementIn.QuantityDelta(5); got != 5 {
		t.Errorf("IN delta = %d, want 5", got)
	}
	if got := models.MovementOut.QuantityDelta(5); got != -5 {
		t.Errorf("OUT delta = %d, want -5", got)
	}
	if got := models.MovementDelivery.QuantityDelta(3); got != -3 {
		t.Errorf("DELIVERY delta = %d, want -3", got)
	}
}

func TestSkuPrefixFallback(t *testing.T) {
	if got := models.CategoryElectronics.SkuPrefix(); got != "ELEC" {
		t.Errorf("electronics prefix = %q, want ELEC", got)
	}
	if got := models.ProductCategory("MYSTERY").SkuPrefix(); got != "OTHR" {
		t.Errorf("unknown category prefix = %q, want OTHR", got)
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	date := models.NewDate(2025, time.March, 9)
	data, err := json.Marshal(date)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2025-03-09"` {
		t.Fatalf("marshal = %s, want \"2025-03-09\"", data)
	}
	var parsed models.Date
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !parsed.Equal(date) {
		t.Fatalf("round trip mismatch: %s != %s", parsed, date)
	}
	if err := json.Unmarshal([]byte(`"09-03-2025"`), &parsed); err == nil {
		t.Fatal("expected error for wrong layout")
	}
}
