package app

import "refund-ledger/internal/core"

// Results wrap core models so adapters never import storage concerns.

type RefundResult struct {
	Refund *core.Refund `json:"refund"`
	// Voucher is populated when the refund owns one, saving the caller a
	// second lookup after voucher-method creation.
	Voucher *core.Voucher `json:"voucher,omitempty"`
}

type RefundListResult struct {
	Refunds []core.Refund `json:"refunds"`
}

type VoucherResult struct {
	Voucher *core.Voucher `json:"voucher"`
}

type RedemptionResult struct {
	Redemption *core.Redemption `json:"redemption"`
}

type VoucherHistoryResult struct {
	VoucherID int                 `json:"voucher_id"`
	Usages    []core.VoucherUsage `json:"usages"`
}

type StockResult struct {
	Levels []core.StockLevel `json:"levels"`
}
