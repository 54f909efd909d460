package models

import (
	"log"

	"bitbucket.org/mmdatafocus/garment_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Supplier{}, &FabricDefinition{}, &FabricVariant{},
		&CuttingRecord{}, &CuttingRecordFabric{},
		&DailySewingRecord{},
		&FinishedProduct{}, &ProductImage{},
		&PackingSession{}, &PackingInventory{},
		&Shop{}, &Order{}, &OrderItem{},
		&Payment{},
		&History{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
