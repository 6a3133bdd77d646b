package app

import (
	"context"

	"refund-ledger/internal/core"
)

// ApplicationService is the single interface the web adapter calls. It
// decouples transport from the ledger and is where actor/tenant identity
// meets the core services.
type ApplicationService interface {
	// CreateRefund creates a pending refund with its items; when the
	// method is voucher, the store-credit voucher is issued atomically
	// with the refund.
	CreateRefund(ctx context.Context, companyID int, req CreateRefundRequest) (*RefundResult, error)

	// ApproveRefund transitions a pending refund to approved.
	ApproveRefund(ctx context.Context, companyID, refundID int, actor string) (*RefundResult, error)

	// CompleteRefund finalizes a pending or approved refund, reinstating
	// stock for destination=stock items in the same atomic unit.
	CompleteRefund(ctx context.Context, companyID, refundID int, actor string) (*RefundResult, error)

	// CancelRefund cancels a pending or approved refund; an owned active
	// voucher is cancelled with it.
	CancelRefund(ctx context.Context, companyID, refundID int, actor, reason string) (*RefundResult, error)

	// GetRefund returns one refund with its items.
	GetRefund(ctx context.Context, companyID, refundID int) (*RefundResult, error)

	// ListRefunds returns refund headers, optionally filtered by status.
	ListRefunds(ctx context.Context, companyID int, status string) (*RefundListResult, error)

	// LookupVoucher finds a voucher by code, applying lazy expiration.
	LookupVoucher(ctx context.Context, companyID int, code string) (*VoucherResult, error)

	// RedeemVoucher debits a voucher toward a sale.
	RedeemVoucher(ctx context.Context, companyID, voucherID int, req RedeemRequest) (*RedemptionResult, error)

	// CancelVoucher cancels an active voucher, freezing its balance.
	CancelVoucher(ctx context.Context, companyID, voucherID int, actor string) (*VoucherResult, error)

	// GetVoucherHistory returns the voucher's usage rows, oldest first.
	GetVoucherHistory(ctx context.Context, companyID, voucherID int) (*VoucherHistoryResult, error)

	// GetStockLevels returns on-hand quantities for the company's products.
	GetStockLevels(ctx context.Context, companyID int) (*StockResult, error)
}

// appService wires the core services behind ApplicationService.
type appService struct {
	refunds  core.RefundService
	vouchers core.VoucherService
	stock    core.StockService
}

func NewAppService(refunds core.RefundService, vouchers core.VoucherService, stock core.StockService) ApplicationService {
	return &appService{refunds: refunds, vouchers: vouchers, stock: stock}
}
