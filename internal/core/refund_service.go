package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RefundService owns the refund lifecycle. Each transition is one
// transaction spanning every row it touches: creation writes the header,
// the items, and (for voucher refunds) the voucher together; completion
// writes the stock reinstatements and the status flip together.
//
// Completion is legal from pending as well as approved: approval is an
// advisory step, not a gate.
type RefundService interface {
	CreateRefund(ctx context.Context, companyID int, in CreateRefundInput) (*Refund, error)
	ApproveRefund(ctx context.Context, companyID, refundID int, actor string) (*Refund, error)
	CompleteRefund(ctx context.Context, companyID, refundID int, actor string) (*Refund, error)
	CancelRefund(ctx context.Context, companyID, refundID int, actor, reason string) (*Refund, error)

	GetRefund(ctx context.Context, companyID, refundID int) (*Refund, error)
	ListRefunds(ctx context.Context, companyID int, status *RefundStatus) ([]Refund, error)
}

type refundService struct {
	pool     *pgxpool.Pool
	vouchers VoucherService
	stock    StockService
}

func NewRefundService(pool *pgxpool.Pool, vouchers VoucherService, stock StockService) RefundService {
	return &refundService{pool: pool, vouchers: vouchers, stock: stock}
}

// ── Creation ─────────────────────────────────────────────────────────────────

func validateCreateInput(in CreateRefundInput) error {
	if len(in.Items) == 0 {
		return validationf("refund must have at least one item")
	}
	if in.CreatedBy == "" {
		return validationf("refund requires a creating actor")
	}
	if in.Type != RefundFull && in.Type != RefundPartial {
		return validationf("invalid refund type %q", in.Type)
	}
	if in.Method != MethodVoucher && in.Method != MethodCash {
		return validationf("invalid refund method %q", in.Method)
	}
	for i, item := range in.Items {
		if item.Quantity.IsNegative() || item.Quantity.IsZero() {
			return validationf("item %d: quantity must be positive, got %s", i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return validationf("item %d: unit price cannot be negative, got %s", i+1, item.UnitPrice)
		}
		switch item.Destination {
		case DestinationStock, DestinationExchange, DestinationLoss:
		default:
			return validationf("item %d: invalid destination %q", i+1, item.Destination)
		}
	}
	return nil
}

func (s *refundService) CreateRefund(ctx context.Context, companyID int, in CreateRefundInput) (*Refund, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin refund creation")
	}
	defer tx.Rollback(ctx)

	// The reversed sale must exist in this tenant.
	var saleID int
	err = tx.QueryRow(ctx,
		"SELECT id FROM sales WHERE company_id = $1 AND id = $2",
		companyID, in.SaleID,
	).Scan(&saleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "sale", Ref: fmt.Sprintf("%d", in.SaleID)}
		}
		return nil, storagef(err, "failed to resolve sale %d", in.SaleID)
	}

	// Snapshot product names and compute the total from the items.
	type resolvedItem struct {
		input       RefundItemInput
		productName string
		totalPrice  decimal.Decimal
	}
	var total decimal.Decimal
	resolved := make([]resolvedItem, 0, len(in.Items))
	for i, item := range in.Items {
		var name string
		err = tx.QueryRow(ctx,
			"SELECT name FROM products WHERE company_id = $1 AND id = $2",
			companyID, item.ProductID,
		).Scan(&name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Entity: "product", Ref: fmt.Sprintf("%d", item.ProductID)}
			}
			return nil, storagef(err, "item %d: failed to resolve product", i+1)
		}
		lineTotal := item.Quantity.Mul(item.UnitPrice)
		total = total.Add(lineTotal)
		resolved = append(resolved, resolvedItem{input: item, productName: name, totalPrice: lineTotal})
	}

	refundNumber, err := nextRefundNumberTx(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}

	var refundID int
	err = tx.QueryRow(ctx, `
		INSERT INTO refunds (company_id, refund_number, sale_id, refund_type, refund_method,
			reason, reason_details, notes, total_refund_value, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, companyID, refundNumber, saleID, string(in.Type), string(in.Method),
		in.Reason, in.ReasonDetails, in.Notes, total, string(RefundPending), in.CreatedBy,
	).Scan(&refundID)
	if err != nil {
		return nil, storagef(err, "failed to insert refund")
	}

	for i, ri := range resolved {
		_, err = tx.Exec(ctx, `
			INSERT INTO refund_items (refund_id, product_id, product_name, quantity, unit_price, total_price, condition, destination)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, refundID, ri.input.ProductID, ri.productName, ri.input.Quantity,
			ri.input.UnitPrice, ri.totalPrice, ri.input.Condition, string(ri.input.Destination))
		if err != nil {
			return nil, storagef(err, "failed to insert refund item %d", i+1)
		}
	}

	// Voucher refunds issue the store credit in the same transaction: a
	// failed issuance rolls the whole refund back.
	if in.Method == MethodVoucher {
		voucher, err := s.vouchers.IssueVoucherTx(ctx, tx, companyID, IssueVoucherInput{
			OriginalValue:  total,
			CustomerID:     in.CustomerID,
			Transferable:   in.Transferable,
			ExpiresAt:      in.ExpiresAt,
			OriginalSaleID: &saleID,
			RefundID:       &refundID,
		})
		if err != nil {
			return nil, err
		}
		if _, err = tx.Exec(ctx,
			"UPDATE refunds SET voucher_id = $1 WHERE id = $2",
			voucher.ID, refundID,
		); err != nil {
			return nil, storagef(err, "failed to link voucher to refund")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit refund creation")
	}

	return s.GetRefund(ctx, companyID, refundID)
}

// ── Transitions ──────────────────────────────────────────────────────────────

// lockRefund reads the refund header under FOR UPDATE within tx.
func lockRefund(ctx context.Context, tx pgx.Tx, companyID, refundID int) (status RefundStatus, voucherID *int, err error) {
	var st string
	err = tx.QueryRow(ctx,
		"SELECT status, voucher_id FROM refunds WHERE company_id = $1 AND id = $2 FOR UPDATE",
		companyID, refundID,
	).Scan(&st, &voucherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, &NotFoundError{Entity: "refund", Ref: fmt.Sprintf("%d", refundID)}
		}
		return "", nil, storagef(err, "failed to lock refund %d", refundID)
	}
	return RefundStatus(st), voucherID, nil
}

func (s *refundService) ApproveRefund(ctx context.Context, companyID, refundID int, actor string) (*Refund, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin refund approval")
	}
	defer tx.Rollback(ctx)

	status, _, err := lockRefund(ctx, tx, companyID, refundID)
	if err != nil {
		return nil, err
	}
	if status != RefundPending {
		return nil, &InvalidTransitionError{Entity: "refund", From: string(status), Action: "approved"}
	}

	_, err = tx.Exec(ctx, `
		UPDATE refunds SET status = $1, approved_by = $2, approved_at = NOW()
		WHERE id = $3
	`, string(RefundApproved), actor, refundID)
	if err != nil {
		return nil, storagef(err, "failed to approve refund %d", refundID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit refund approval")
	}
	return s.GetRefund(ctx, companyID, refundID)
}

func (s *refundService) CompleteRefund(ctx context.Context, companyID, refundID int, actor string) (*Refund, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin refund completion")
	}
	defer tx.Rollback(ctx)

	status, _, err := lockRefund(ctx, tx, companyID, refundID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, &AlreadyFinalizedError{Entity: "refund", Status: string(status)}
	}

	// Reinstate stock for every item returning to inventory. Runs inside
	// this transaction: any failure aborts the completion entirely.
	items, err := fetchRefundItemsQ(ctx, tx, refundID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Destination != DestinationStock {
			continue
		}
		note := fmt.Sprintf("Refund %d completed: %s × %s returned to stock", refundID, item.ProductName, item.Quantity)
		if err := s.stock.AddStockTx(ctx, tx, companyID, item.ProductID, item.Quantity, refundID, note); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE refunds SET status = $1, completed_by = $2, completed_at = NOW()
		WHERE id = $3
	`, string(RefundCompleted), actor, refundID)
	if err != nil {
		return nil, storagef(err, "failed to complete refund %d", refundID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit refund completion")
	}
	return s.GetRefund(ctx, companyID, refundID)
}

func (s *refundService) CancelRefund(ctx context.Context, companyID, refundID int, actor, reason string) (*Refund, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin refund cancellation")
	}
	defer tx.Rollback(ctx)

	status, voucherID, err := lockRefund(ctx, tx, companyID, refundID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, &AlreadyFinalizedError{Entity: "refund", Status: string(status)}
	}

	// An owned voucher that is still active dies with its refund.
	// Vouchers already used, expired, or cancelled are left untouched.
	if voucherID != nil {
		var vStatus string
		err = tx.QueryRow(ctx,
			"SELECT status FROM vouchers WHERE id = $1 FOR UPDATE",
			*voucherID,
		).Scan(&vStatus)
		if err != nil {
			return nil, storagef(err, "failed to lock voucher %d", *voucherID)
		}
		if VoucherStatus(vStatus) == VoucherActive {
			if err := s.vouchers.CancelVoucherTx(ctx, tx, companyID, *voucherID, actor); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE refunds SET status = $1, cancelled_by = $2, cancelled_at = NOW(), cancel_reason = $3
		WHERE id = $4
	`, string(RefundCancelled), actor, reason, refundID)
	if err != nil {
		return nil, storagef(err, "failed to cancel refund %d", refundID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit refund cancellation")
	}
	return s.GetRefund(ctx, companyID, refundID)
}

// ── Queries ──────────────────────────────────────────────────────────────────

const refundColumns = `id, company_id, refund_number, sale_id, voucher_id,
	refund_type, refund_method, reason, reason_details, notes,
	total_refund_value, status, created_by, created_at,
	approved_by, approved_at, completed_by, completed_at,
	cancelled_by, cancelled_at, cancel_reason`

func scanRefund(row pgx.Row) (*Refund, error) {
	var r Refund
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.RefundNumber, &r.SaleID, &r.VoucherID,
		&r.Type, &r.Method, &r.Reason, &r.ReasonDetails, &r.Notes,
		&r.TotalRefundValue, &r.Status, &r.CreatedBy, &r.CreatedAt,
		&r.ApprovedBy, &r.ApprovedAt, &r.CompletedBy, &r.CompletedAt,
		&r.CancelledBy, &r.CancelledAt, &r.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *refundService) GetRefund(ctx context.Context, companyID, refundID int) (*Refund, error) {
	r, err := scanRefund(s.pool.QueryRow(ctx,
		"SELECT "+refundColumns+" FROM refunds WHERE company_id = $1 AND id = $2",
		companyID, refundID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "refund", Ref: fmt.Sprintf("%d", refundID)}
		}
		return nil, storagef(err, "failed to fetch refund %d", refundID)
	}

	items, err := fetchRefundItemsQ(ctx, s.pool, refundID)
	if err != nil {
		return nil, err
	}
	r.Items = items
	return r, nil
}

func (s *refundService) ListRefunds(ctx context.Context, companyID int, status *RefundStatus) ([]Refund, error) {
	query := "SELECT " + refundColumns + " FROM refunds WHERE company_id = $1"
	args := []any{companyID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, string(*status))
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storagef(err, "failed to query refunds")
	}
	defer rows.Close()

	var refunds []Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, storagef(err, "failed to scan refund")
		}
		refunds = append(refunds, *r)
	}
	return refunds, nil
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func fetchRefundItemsQ(ctx context.Context, q pgxRowQuerier, refundID int) ([]RefundItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, refund_id, product_id, product_name, quantity, unit_price, total_price, condition, destination
		FROM refund_items
		WHERE refund_id = $1
		ORDER BY id
	`, refundID)
	if err != nil {
		return nil, storagef(err, "failed to query refund items")
	}
	defer rows.Close()

	var items []RefundItem
	for rows.Next() {
		var it RefundItem
		if err := rows.Scan(&it.ID, &it.RefundID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Condition, &it.Destination); err != nil {
			return nil, storagef(err, "failed to scan refund item")
		}
		items = append(items, it)
	}
	return items, nil
}
