// Seed inserts demo payment orders in assorted lifecycle states for local
// dashboard work. Not for production use.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"schoolpay/internal/config"
	"schoolpay/internal/db"
	"schoolpay/internal/model"
	"schoolpay/internal/repository"
)

func main() {
	log.Println("Starting seed script...")

	cfg := config.Load()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	if err := gormDB.AutoMigrate(&model.PaymentOrder{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	orderRepo := repository.NewPaymentOrderRepository(gormDB)
	ctx := context.Background()

	schoolID := uuid.New()
	now := time.Now()
	paidAt := now.Add(-24 * time.Hour)

	orders := []model.PaymentOrder{
		{
			SchoolID:       schoolID,
			GatewayOrderID: demoID("order"),
			Amount:         500000,
			Currency:       cfg.Currency,
			Status:         model.PaymentStatusCreated,
			Receipt:        demoReceipt(schoolID),
		},
		{
			SchoolID:         schoolID,
			GatewayOrderID:   demoID("order"),
			GatewayPaymentID: demoID("pay"),
			Amount:           750000,
			Currency:         cfg.Currency,
			Status:           model.PaymentStatusPaid,
			Attempts:         1,
			Receipt:          demoReceipt(schoolID),
			PaymentMethod:    "upi",
			PaidAt:           &paidAt,
		},
		{
			SchoolID:       schoolID,
			GatewayOrderID: demoID("order"),
			Amount:         250000,
			Currency:       cfg.Currency,
			Status:         model.PaymentStatusFailed,
			FailureReason:  "payment failed at gateway",
			Receipt:        demoReceipt(schoolID),
		},
		{
			SchoolID:         schoolID,
			GatewayOrderID:   demoID("order"),
			GatewayPaymentID: demoID("pay"),
			Amount:           1000000,
			Currency:         cfg.Currency,
			Status:           model.PaymentStatusPartialRefund,
			Attempts:         1,
			Receipt:          demoReceipt(schoolID),
			PaymentMethod:    "card",
			PaidAt:           &paidAt,
		},
	}

	created := 0
	for i := range orders {
		if err := orderRepo.Create(ctx, &orders[i]); err != nil {
			log.Printf("Skipping order %s: %v", orders[i].GatewayOrderID, err)
			continue
		}
		created++
	}
	log.Printf("Seeded %d demo payment orders for school %s", created, schoolID)
}

func demoID(prefix string) string {
	return fmt.Sprintf("%s_demo_%s", prefix, uuid.New().String()[:13])
}

func demoReceipt(schoolID uuid.UUID) string {
	return fmt.Sprintf("FEE_%d_%s", time.Now().UnixNano(), schoolID.String()[:8])
}
