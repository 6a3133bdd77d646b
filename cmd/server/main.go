package main

import (
	"context"
	"log"
	"net/http"
	"os"

	webAdapter "refund-ledger/internal/adapters/web"
	"refund-ledger/internal/app"
	"refund-ledger/internal/core"
	"refund-ledger/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	voucherService := core.NewVoucherService(pool)
	stockService := core.NewStockService(pool)
	refundService := core.NewRefundService(pool, voucherService, stockService)

	svc := app.NewAppService(refundService, voucherService, stockService)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins, jwtSecret)

	log.Printf("refund ledger starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
