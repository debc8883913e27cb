package models

import (
	"log"
	"os"

	"github.com/dlvery/dlvery_backend/config"
)

func MigrateTable() {
	if os.Getenv("SKIP_MIGRATIONS") == "1" {
		log.Println("SKIP_MIGRATIONS=1; skipping schema migration")
		return
	}

	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&DeliveryAgentProfile{},
		&Product{}, &InventoryMovement{},
		&Delivery{}, &DeliveryItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
