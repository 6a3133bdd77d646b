package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB. Company 2 exists only to prove tenant scoping.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE voucher_usages, vouchers, refund_items, refunds, refund_sequences,
			inventory_movements, inventory_items, sales, products, customers, companies CASCADE;

		INSERT INTO companies (id, company_code, name) VALUES
		(1, 'STORE1', 'Test Store'),
		(2, 'STORE2', 'Other Store');

		INSERT INTO customers (id, company_id, name, document, phone, email) VALUES
		(10, 1, 'Ana Souza', '123.456.789-00', '+55 11 98888-0000', 'ana@example.com'),
		(11, 1, 'Bruno Lima', '987.654.321-00', '+55 11 97777-0000', 'bruno@example.com');

		INSERT INTO products (id, company_id, code, name, unit_price) VALUES
		(100, 1, 'SKU-100', 'Wireless Mouse', 50.00),
		(101, 1, 'SKU-101', 'Mouse Pad', 10.00);

		INSERT INTO inventory_items (company_id, product_id, qty_on_hand) VALUES
		(1, 100, 5),
		(1, 101, 20);

		INSERT INTO sales (id, company_id, sale_number, customer_id, total_value) VALUES
		(500, 1, 'S-000500', 10, 70.00),
		(501, 1, 'S-000501', NULL, 200.00);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}
