package models

import (
	"log"

	"github.com/sevacare/facility_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Patient{}, &PatientCharge{},
		&LedgerRecord{}, &PaymentEvent{}, &CarryForward{},
		&LedgerOutboxRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
