package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// VoucherService manages store-credit accounts: issuance, lookup with
// lazy expiration, the serialized redemption protocol, cancellation, and
// the usage history projection.
//
// Expiration is lazy and read-triggered: the first read of an active
// voucher past its expires_at persists the expired status before the
// result is returned. The materializing write is idempotent (guarded by
// status = 'active'), so concurrent reads race harmlessly.
type VoucherService interface {
	// IssueVoucherTx creates a voucher inside the caller's transaction.
	// Used by RefundService so issuance is atomic with refund creation.
	IssueVoucherTx(ctx context.Context, tx pgx.Tx, companyID int, in IssueVoucherInput) (*Voucher, error)

	// LookupByCode finds a voucher by its code (case-insensitive),
	// materializing lazy expiration when due.
	LookupByCode(ctx context.Context, companyID int, code string) (*Voucher, error)

	// GetVoucher returns a voucher by ID, materializing lazy expiration
	// when due.
	GetVoucher(ctx context.Context, companyID, voucherID int) (*Voucher, error)

	// Redeem debits amount from the voucher toward a sale. All steps run
	// inside one transaction holding an exclusive row lock on the
	// voucher, which serializes concurrent redemptions and makes
	// overdraft impossible.
	Redeem(ctx context.Context, companyID, voucherID int, in RedeemInput) (*Redemption, error)

	// CancelVoucher cancels an active voucher. The remaining balance is
	// frozen, not zeroed.
	CancelVoucher(ctx context.Context, companyID, voucherID int, actor string) (*Voucher, error)

	// CancelVoucherTx is the TX-scoped variant used by RefundService
	// when cancelling a refund that owns an active voucher.
	CancelVoucherTx(ctx context.Context, tx pgx.Tx, companyID, voucherID int, actor string) error

	// History returns the voucher's usage rows ordered by used_at
	// ascending. Pure read, no mutation.
	History(ctx context.Context, companyID, voucherID int) ([]VoucherUsage, error)
}

// IssueVoucherInput carries voucher issuance parameters.
type IssueVoucherInput struct {
	OriginalValue  decimal.Decimal
	CustomerID     *int // nil issues an anonymous voucher
	Transferable   bool
	ExpiresAt      *time.Time
	OriginalSaleID *int
	RefundID       *int
}

// RedeemInput carries one redemption attempt.
type RedeemInput struct {
	Amount decimal.Decimal
	SaleID int
	UsedBy string
	// PresentedDocument is the document of the person redeeming. Checked
	// against the holder snapshot when the voucher is non-transferable;
	// the check is skipped when either side is empty.
	PresentedDocument string
}

type voucherService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewVoucherService(pool *pgxpool.Pool) VoucherService {
	return &voucherService{pool: pool, now: time.Now}
}

const voucherColumns = `id, company_id, code, original_value, current_value,
	customer_id, customer_name, customer_document, customer_phone,
	is_transferable, original_sale_id, refund_id, status, expires_at,
	created_at, cancelled_by, cancelled_at`

func scanVoucher(row pgx.Row) (*Voucher, error) {
	var v Voucher
	err := row.Scan(
		&v.ID, &v.CompanyID, &v.Code, &v.OriginalValue, &v.CurrentValue,
		&v.CustomerID, &v.CustomerName, &v.CustomerDocument, &v.CustomerPhone,
		&v.IsTransferable, &v.OriginalSaleID, &v.RefundID, &v.Status, &v.ExpiresAt,
		&v.CreatedAt, &v.CancelledBy, &v.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ── Issuance ─────────────────────────────────────────────────────────────────

func (s *voucherService) IssueVoucherTx(ctx context.Context, tx pgx.Tx, companyID int, in IssueVoucherInput) (*Voucher, error) {
	if in.OriginalValue.IsNegative() || in.OriginalValue.IsZero() {
		return nil, validationf("voucher value must be positive, got %s", in.OriginalValue)
	}

	// Snapshot the holder at issuance. The voucher keeps these fields
	// even if the customer record changes later.
	var customerName, customerDocument, customerPhone string
	if in.CustomerID != nil {
		err := tx.QueryRow(ctx,
			"SELECT name, document, phone FROM customers WHERE company_id = $1 AND id = $2",
			companyID, *in.CustomerID,
		).Scan(&customerName, &customerDocument, &customerPhone)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &NotFoundError{Entity: "customer", Ref: fmt.Sprintf("%d", *in.CustomerID)}
			}
			return nil, storagef(err, "failed to resolve customer %d", *in.CustomerID)
		}
	}

	// ON CONFLICT DO NOTHING keeps a collision from aborting the whole
	// enclosing transaction; no row returned means try another code.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateVoucherCode()
		if err != nil {
			return nil, storagef(err, "failed to generate voucher code")
		}

		var id int
		err = tx.QueryRow(ctx, `
			INSERT INTO vouchers (company_id, code, original_value, current_value,
				customer_id, customer_name, customer_document, customer_phone,
				is_transferable, original_sale_id, refund_id, status, expires_at)
			VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (company_id, code) DO NOTHING
			RETURNING id
		`, companyID, code, in.OriginalValue,
			in.CustomerID, customerName, customerDocument, customerPhone,
			in.Transferable, in.OriginalSaleID, in.RefundID, string(VoucherActive), in.ExpiresAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // code collision, regenerate
		}
		if err != nil {
			return nil, storagef(err, "failed to insert voucher")
		}

		return scanVoucherTx(ctx, tx, id)
	}

	return nil, &CodeGenerationError{Attempts: maxCodeAttempts}
}

func scanVoucherTx(ctx context.Context, tx pgx.Tx, id int) (*Voucher, error) {
	v, err := scanVoucher(tx.QueryRow(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE id = $1", id))
	if err != nil {
		return nil, storagef(err, "failed to read back voucher %d", id)
	}
	return v, nil
}

// ── Lookup and lazy expiration ───────────────────────────────────────────────

// expiryDue is the pure half of the two-phase lazy expiration: it only
// inspects the voucher, never mutates.
func expiryDue(v *Voucher, now time.Time) bool {
	return v.Status == VoucherActive && v.ExpiresAt != nil && v.ExpiresAt.Before(now)
}

// materializeExpiry is the idempotent write half. The status guard makes
// concurrent calls safe: exactly one performs the write, all observers
// see expired afterwards.
func (s *voucherService) materializeExpiry(ctx context.Context, voucherID int) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE vouchers SET status = $1 WHERE id = $2 AND status = $3",
		string(VoucherExpired), voucherID, string(VoucherActive),
	)
	if err != nil {
		return storagef(err, "failed to expire voucher %d", voucherID)
	}
	return nil
}

func (s *voucherService) LookupByCode(ctx context.Context, companyID int, code string) (*Voucher, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	v, err := scanVoucher(s.pool.QueryRow(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE company_id = $1 AND code = $2",
		companyID, normalized))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "voucher", Ref: normalized}
		}
		return nil, storagef(err, "failed to lookup voucher %s", normalized)
	}

	if expiryDue(v, s.now()) {
		if err := s.materializeExpiry(ctx, v.ID); err != nil {
			return nil, err
		}
		v.Status = VoucherExpired
	}
	return v, nil
}

func (s *voucherService) GetVoucher(ctx context.Context, companyID, voucherID int) (*Voucher, error) {
	v, err := scanVoucher(s.pool.QueryRow(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE company_id = $1 AND id = $2",
		companyID, voucherID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "voucher", Ref: fmt.Sprintf("%d", voucherID)}
		}
		return nil, storagef(err, "failed to fetch voucher %d", voucherID)
	}

	if expiryDue(v, s.now()) {
		if err := s.materializeExpiry(ctx, v.ID); err != nil {
			return nil, err
		}
		v.Status = VoucherExpired
	}
	return v, nil
}

// ── Redemption ───────────────────────────────────────────────────────────────

func (s *voucherService) Redeem(ctx context.Context, companyID, voucherID int, in RedeemInput) (*Redemption, error) {
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		return nil, validationf("redemption amount must be positive, got %s", in.Amount)
	}
	if in.UsedBy == "" {
		return nil, validationf("redemption requires an actor")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin redemption transaction")
	}
	defer tx.Rollback(ctx)

	// Exclusive row lock: every concurrent redemption of this voucher
	// queues here until the current one commits or rolls back.
	v, err := scanVoucher(tx.QueryRow(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE company_id = $1 AND id = $2 FOR UPDATE",
		companyID, voucherID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "voucher", Ref: fmt.Sprintf("%d", voucherID)}
		}
		return nil, storagef(err, "failed to lock voucher %d", voucherID)
	}

	// Expiration materialized under the lock counts as part of this
	// transaction; the attempt then fails as not-active.
	if expiryDue(v, s.now()) {
		if _, err := tx.Exec(ctx,
			"UPDATE vouchers SET status = $1 WHERE id = $2 AND status = $3",
			string(VoucherExpired), v.ID, string(VoucherActive),
		); err != nil {
			return nil, storagef(err, "failed to expire voucher %d", v.ID)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, storagef(err, "failed to commit voucher expiration")
		}
		return nil, &VoucherNotActiveError{Code: v.Code, Status: VoucherExpired}
	}

	if v.Status != VoucherActive {
		return nil, &VoucherNotActiveError{Code: v.Code, Status: v.Status}
	}

	if !v.IsTransferable && v.CustomerDocument != "" && in.PresentedDocument != "" &&
		!strings.EqualFold(v.CustomerDocument, in.PresentedDocument) {
		return nil, &VoucherNotTransferableError{Code: v.Code}
	}

	if in.Amount.GreaterThan(v.CurrentValue) {
		return nil, &InsufficientBalanceError{Code: v.Code, Available: v.CurrentValue, Requested: in.Amount}
	}

	// Validate the sale this redemption applies toward.
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

	balanceBefore := v.CurrentValue
	balanceAfter := balanceBefore.Sub(in.Amount)
	newStatus := VoucherActive
	if balanceAfter.IsZero() {
		newStatus = VoucherUsed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO voucher_usages (voucher_id, sale_id, amount_used, balance_before, balance_after, used_by, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, v.ID, saleID, in.Amount, balanceBefore, balanceAfter, in.UsedBy)
	if err != nil {
		return nil, storagef(err, "failed to append voucher usage")
	}

	_, err = tx.Exec(ctx,
		"UPDATE vouchers SET current_value = $1, status = $2 WHERE id = $3",
		balanceAfter, string(newStatus), v.ID,
	)
	if err != nil {
		return nil, storagef(err, "failed to update voucher balance")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit redemption")
	}

	return &Redemption{
		VoucherID:     v.ID,
		AmountUsed:    in.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        newStatus,
	}, nil
}

// ── Cancellation ─────────────────────────────────────────────────────────────

func (s *voucherService) CancelVoucher(ctx context.Context, companyID, voucherID int, actor string) (*Voucher, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storagef(err, "failed to begin cancellation transaction")
	}
	defer tx.Rollback(ctx)

	if err := s.CancelVoucherTx(ctx, tx, companyID, voucherID, actor); err != nil {
		return nil, err
	}

	v, err := scanVoucherTx(ctx, tx, voucherID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storagef(err, "failed to commit voucher cancellation")
	}
	return v, nil
}

func (s *voucherService) CancelVoucherTx(ctx context.Context, tx pgx.Tx, companyID, voucherID int, actor string) error {
	var code string
	var status VoucherStatus
	err := tx.QueryRow(ctx,
		"SELECT code, status FROM vouchers WHERE company_id = $1 AND id = $2 FOR UPDATE",
		companyID, voucherID,
	).Scan(&code, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "voucher", Ref: fmt.Sprintf("%d", voucherID)}
		}
		return storagef(err, "failed to lock voucher %d", voucherID)
	}

	if status != VoucherActive {
		return &VoucherNotActiveError{Code: code, Status: status}
	}

	// Balance is left as-is: the remaining value is frozen, not spent.
	_, err = tx.Exec(ctx, `
		UPDATE vouchers SET status = $1, cancelled_by = $2, cancelled_at = NOW()
		WHERE id = $3
	`, string(VoucherCancelled), actor, voucherID)
	if err != nil {
		return storagef(err, "failed to cancel voucher %d", voucherID)
	}
	return nil
}

// ── History ──────────────────────────────────────────────────────────────────

func (s *voucherService) History(ctx context.Context, companyID, voucherID int) ([]VoucherUsage, error) {
	// Scope check first so a foreign voucher reads as not-found rather
	// than as an empty history.
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM vouchers WHERE company_id = $1 AND id = $2)",
		companyID, voucherID,
	).Scan(&exists)
	if err != nil {
		return nil, storagef(err, "failed to check voucher %d", voucherID)
	}
	if !exists {
		return nil, &NotFoundError{Entity: "voucher", Ref: fmt.Sprintf("%d", voucherID)}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, voucher_id, sale_id, amount_used, balance_before, balance_after, used_by, used_at
		FROM voucher_usages
		WHERE voucher_id = $1
		ORDER BY used_at ASC, id ASC
	`, voucherID)
	if err != nil {
		return nil, storagef(err, "failed to query voucher history")
	}
	defer rows.Close()

	var usages []VoucherUsage
	for rows.Next() {
		var u VoucherUsage
		if err := rows.Scan(&u.ID, &u.VoucherID, &u.SaleID, &u.AmountUsed,
			&u.BalanceBefore, &u.BalanceAfter, &u.UsedBy, &u.UsedAt); err != nil {
			return nil, storagef(err, "failed to scan voucher usage")
		}
		usages = append(usages, u)
	}
	return usages, nil
}
