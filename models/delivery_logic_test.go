package models_test

import (
	"testing"
	"time"

	"github.com/dlvery/dlvery_backend/models"
	"github.com/dlvery/dlvery_backend/utils"
)

var logicToday = models.NewDate(2025, time.June, 10)

func TestProductPriority(t *testing.T) {
	expiry := logicToday.AddDays(2)
	farExpiry := logicToday.AddDays(30)

	cases := []struct {
		name    string
		product models.Product
		want    models.DeliveryPriority
	}{
		{"pharmaceutical is emergency", models.Product{Category: models.CategoryPharmaceutical}, models.PriorityEmergency},
		{"perishable flag wins", models.Product{Category: models.CategoryElectronics, IsPerishable: utils.NewTrue()}, models.PriorityPerishable},
		{"near expiry is perishable", models.Product{Category: models.CategoryElectronics, ExpiryDate: &expiry}, models.PriorityPerishable},
		{"far expiry stays standard", models.Product{Category: models.CategoryElectronics, ExpiryDate: &farExpiry}, models.PriorityStandard},
		{"food is essential", models.Product{Category: models.CategoryFoodBeverages}, models.PriorityEssential},
		{"health beauty is essential", models.Product{Category: models.CategoryHealthBeauty}, models.PriorityEssential},
		{"frozen is essential", models.Product{Category: models.CategoryFrozenGoods}, models.PriorityEssential},
		{"electronics is standard", models.Product{Category: models.CategoryElectronics}, models.PriorityStandard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.ProductPriority(&tc.product, logicToday); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDerivePriorityPicksMostUrgent(t *testing.T) {
	standard := &models.Product{Category: models.CategoryElectronics}
	emergency := &models.Product{Category: models.CategoryPharmaceutical}
	essential := &models.Product{Category: models.CategoryFoodBeverages}

	if got := models.DerivePriority([]*models.Product{standard, emergency}, logicToday); got != models.PriorityEmergency {
		t.Errorf("emergency should beat standard, got %s", got)
	}
	if got := models.DerivePriority([]*models.Product{standard, essential}, logicToday); got != models.PriorityEssential {
		t.Errorf("essential should beat standard, got %s", got)
	}
	if got := models.DerivePriority([]*models.Product{standard}, logicToday); got != models.PriorityStandard {
		t.Errorf("single standard product, got %s", got)
	}
	if got := models.DerivePriority(nil, logicToday); got != models.PriorityStandard {
		t.Errorf("empty set defaults to standard, got %s", got)
	}
}

func TestIsOverdue(t *testing.T) {
	past := logicToday.AddDays(-1)
	cases := []struct {
		name     string
		delivery models.Delivery
		want     bool
	}{
		{"past and pending", models.Delivery{ScheduledDate: past, Status: models.StatusPending}, true},
		{"past and in transit", models.Delivery{ScheduledDate: past, Status: models.StatusInTransit}, true},
		{"past but delivered", models.Delivery{ScheduledDate: past, Status: models.StatusDelivered}, false},
		{"due today", models.Delivery{ScheduledDate: logicToday, Status: models.StatusPending}, false},
		{"future", models.Delivery{ScheduledDate: logicToday.AddDays(2), Status: models.StatusPending}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.IsOverdue(&tc.delivery, logicToday); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAgentDeliveryViewCarriesOverdueFlag(t *testing.T) {
	delivery := &models.Delivery{
		DeliveryId:    "DLV-ABCD1234",
		Status:        models.StatusInTransit,
		Priority:      models.PriorityPerishable,
		ScheduledDate: logicToday.AddDays(-3),
		Items:         []models.DeliveryItem{{Quantity: 2}, {Quantity: 1}},
	}
	view := models.NewAgentDeliveryView(delivery, logicToday)
	if !view.Overdue {
		t.Error("view should be overdue")
	}
	if view.TotalItems != 2 {
		t.Errorf("total items = %d, want 2", view.TotalItems)
	}
	if view.PriorityDescription != "Perishable" {
		t.Errorf("priority description = %q", view.PriorityDescription)
	}
}

func TestAgentIdentityNamesAndMatches(t *testing.T) {
	dual := models.AgentIdentity{LoginId: "agent42", DisplayName: "Ravi Kumar"}
	names := dual.Names()
	if len(names) != 2 || names[0] != "agent42" || names[1] != "Ravi Kumar" {
		t.Fatalf("names = %v", names)
	}
	if !dual.Matches("agent42") || !dual.Matches("Ravi Kumar") {
		t.Error("identity should match both names")
	}
	if dual.Matches("someone else") {
		t.Error("identity should not match a stranger")
	}

	bare := models.AgentIdentity{LoginId: "agent42", DisplayName: "agent42"}
	if got := bare.Names(); len(got) != 1 {
		t.Fatalf("identical names should collapse, got %v", got)
	}
}

func TestIsProfileComplete(t *testing.T) {
	dob := models.NewDate(1994, time.January, 20)
	complete := models.DeliveryAgentProfile{
		PhoneNumber:   "+919876543210",
		Address:       "14 MG Road",
		City:          "Bengaluru",
		State:         "Karnataka",
		DateOfBirth:   &dob,
		LicenseNumber: "KA-2020-0001",
		VehicleType:   "BIKE",
		VehicleNumber: "KA01AB1234",
	}
	if !models.IsProfileComplete(&complete) {
		t.Fatal("profile with all required fields should be complete")
	}

	missing := complete
	missing.VehicleNumber = "   "
	if models.IsProfileComplete(&missing) {
		t.Error("blank vehicle number should fail completeness")
	}

	noDob := complete
	noDob.DateOfBirth = nil
	if models.IsProfileComplete(&noDob) {
		t.Error("missing date of birth should fail completeness")
	}

	// Optional fields are not part of the predicate.
	sparse := complete
	sparse.BankName = ""
	sparse.IfscCode = ""
	sparse.EmergencyContactName = ""
	if !models.IsProfileComplete(&sparse) {
		t.Error("bank and emergency fields are optional")
	}
}
