package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService reinstates returned units to inventory and exposes stock
// level reads. The write path is TX-scoped only: RefundService calls
// AddStockTx inside the refund-completion transaction so the stock
// update and the status transition land together or not at all.
type StockService interface {
	// AddStockTx increments qty_on_hand for a product within the
	// caller's transaction and appends a REFUND_RETURN movement.
	AddStockTx(ctx context.Context, tx pgx.Tx, companyID, productID int, qty decimal.Decimal, refundID int, note string) error

	// GetStockLevels returns current on-hand quantities for all active
	// products of a company.
	GetStockLevels(ctx context.Context, companyID int) ([]StockLevel, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) AddStockTx(ctx context.Context, tx pgx.Tx, companyID, productID int, qty decimal.Decimal, refundID int, note string) error {
	if qty.IsNegative() || qty.IsZero() {
		return validationf("reinstated quantity must be positive, got %s", qty)
	}

	// Verify the product exists in this tenant before touching stock.
	var productCode string
	err := tx.QueryRow(ctx,
		"SELECT code FROM products WHERE company_id = $1 AND id = $2 AND is_active = true",
		companyID, productID,
	).Scan(&productCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "product", Ref: fmt.Sprintf("%d", productID)}
		}
		return storagef(err, "failed to resolve product %d", productID)
	}

	// Create the inventory row on first return of a product, then lock it.
	var itemID int
	err = tx.QueryRow(ctx, `
		INSERT INTO inventory_items (company_id, product_id, qty_on_hand)
		VALUES ($1, $2, 0)
		ON CONFLICT (company_id, product_id) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, companyID, productID).Scan(&itemID)
	if err != nil {
		return storagef(err, "failed to upsert inventory item for product %s", productCode)
	}

	var onHand decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT qty_on_hand FROM inventory_items WHERE id = $1 FOR UPDATE",
		itemID,
	).Scan(&onHand)
	if err != nil {
		return storagef(err, "failed to lock inventory item %d", itemID)
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_items
		SET qty_on_hand = qty_on_hand + $1, updated_at = NOW()
		WHERE id = $2
	`, qty, itemID)
	if err != nil {
		return storagef(err, "failed to reinstate stock for product %s", productCode)
	}

	if note == "" {
		note = fmt.Sprintf("Stock reinstated from refund ID %d, product %s", refundID, productCode)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_movements (company_id, inventory_item_id, movement_type, quantity, refund_id, movement_date, notes)
		VALUES ($1, $2, 'REFUND_RETURN', $3, $4, CURRENT_DATE, $5)
	`, companyID, itemID, qty, refundID, note)
	if err != nil {
		return storagef(err, "failed to insert return movement for product %s", productCode)
	}

	return nil
}

func (s *stockService) GetStockLevels(ctx context.Context, companyID int) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.code, p.name, COALESCE(ii.qty_on_hand, 0)
		FROM products p
		LEFT JOIN inventory_items ii ON ii.product_id = p.id AND ii.company_id = p.company_id
		WHERE p.company_id = $1 AND p.is_active = true
		ORDER BY p.code
	`, companyID)
	if err != nil {
		return nil, storagef(err, "failed to query stock levels")
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.ProductID, &sl.ProductCode, &sl.ProductName, &sl.OnHand); err != nil {
			return nil, storagef(err, "failed to scan stock level")
		}
		levels = append(levels, sl)
	}
	return levels, nil
}
