package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus is the refund lifecycle state.
// Status progresses through the state machine:
//
//	pending → approved → completed
//	pending | approved → cancelled
//
// completed and cancelled are terminal.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundApproved  RefundStatus = "approved"
	RefundCompleted RefundStatus = "completed"
	RefundCancelled RefundStatus = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s RefundStatus) Terminal() bool {
	return s == RefundCompleted || s == RefundCancelled
}

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
)

type RefundMethod string

const (
	MethodVoucher RefundMethod = "voucher"
	MethodCash    RefundMethod = "cash"
)

// ItemDestination is the disposition of a returned physical item.
// Only DestinationStock triggers stock reinstatement on completion.
type ItemDestination string

const (
	DestinationStock    ItemDestination = "stock"
	DestinationExchange ItemDestination = "exchange"
	DestinationLoss     ItemDestination = "loss"
)

// Refund is a record reversing part or all of a prior sale.
// TotalRefundValue is computed from the items at creation and never
// edited independently.
type Refund struct {
	ID               int             `json:"id"`
	CompanyID        int             `json:"company_id"`
	RefundNumber     string          `json:"refund_number"`
	SaleID           int             `json:"sale_id"`
	VoucherID        *int            `json:"voucher_id,omitempty"` // set iff Method == voucher
	Type             RefundType      `json:"refund_type"`
	Method           RefundMethod    `json:"refund_method"`
	Reason           string          `json:"reason"`
	ReasonDetails    string          `json:"reason_details"`
	Notes            string          `json:"notes"`
	TotalRefundValue decimal.Decimal `json:"total_refund_value"`
	Status           RefundStatus    `json:"status"`
	Items            []RefundItem    `json:"items"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	ApprovedBy       *string         `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	CompletedBy      *string         `json:"completed_by,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CancelledBy      *string         `json:"cancelled_by,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason     *string         `json:"cancel_reason,omitempty"`
}

// RefundItem is one returned line on a refund. ProductName is a snapshot
// taken at refund time; it does not follow later product renames.
type RefundItem struct {
	ID          int             `json:"id"`
	RefundID    int             `json:"refund_id"`
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Condition   string          `json:"condition"`
	Destination ItemDestination `json:"destination"`
}

// VoucherStatus is the voucher account state. All states other than
// active are terminal; no value mutation is permitted once terminal.
type VoucherStatus string

const (
	VoucherActive    VoucherStatus = "active"
	VoucherUsed      VoucherStatus = "used"
	VoucherExpired   VoucherStatus = "expired"
	VoucherCancelled VoucherStatus = "cancelled"
)

func (s VoucherStatus) Terminal() bool { return s != VoucherActive }

// Voucher is a store-credit account with a spendable balance.
// Invariant: 0 ≤ CurrentValue ≤ OriginalValue. The customer fields are
// snapshotted at issuance and used for transferability checks.
type Voucher struct {
	ID               int             `json:"id"`
	CompanyID        int             `json:"company_id"`
	Code             string          `json:"code"`
	OriginalValue    decimal.Decimal `json:"original_value"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	CustomerID       *int            `json:"customer_id,omitempty"`
	CustomerName     string          `json:"customer_name"`
	CustomerDocument string          `json:"customer_document"`
	CustomerPhone    string          `json:"customer_phone"`
	IsTransferable   bool            `json:"is_transferable"`
	OriginalSaleID   *int            `json:"original_sale_id,omitempty"`
	RefundID         *int            `json:"refund_id,omitempty"`
	Status           VoucherStatus   `json:"status"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CancelledBy      *string         `json:"cancelled_by,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

// VoucherUsage is one append-only debit against a voucher. For a voucher
// ordered by UsedAt, BalanceAfter of row n equals BalanceBefore of row n+1.
type VoucherUsage struct {
	ID            int             `json:"id"`
	VoucherID     int             `json:"voucher_id"`
	SaleID        int             `json:"sale_id"`
	AmountUsed    decimal.Decimal `json:"amount_used"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	UsedBy        string          `json:"used_by"`
	UsedAt        time.Time       `json:"used_at"`
}

// Redemption is the result of a successful voucher debit.
type Redemption struct {
	VoucherID     int             `json:"voucher_id"`
	AmountUsed    decimal.Decimal `json:"amount_used"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        VoucherStatus   `json:"voucher_status"`
}

// Company is a tenant of the ledger.
type Company struct {
	ID          int       `json:"id"`
	CompanyCode string    `json:"company_code"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Customer is a read-only master record used to snapshot voucher holders.
type Customer struct {
	ID        int       `json:"id"`
	CompanyID int       `json:"company_id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a sellable item whose units can be reinstated to stock.
type Product struct {
	ID        int             `json:"id"`
	CompanyID int             `json:"company_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// StockLevel is a read projection of one product's on-hand quantity.
type StockLevel struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	OnHand      decimal.Decimal `json:"qty_on_hand"`
}

// RefundItemInput is one line of a refund creation request.
type RefundItemInput struct {
	ProductID   int
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Condition   string
	Destination ItemDestination
}

// CreateRefundInput carries everything needed to create a refund and,
// when Method is voucher, issue the backing voucher in the same unit.
type CreateRefundInput struct {
	SaleID        int
	Type          RefundType
	Method        RefundMethod
	Reason        string
	ReasonDetails string
	Notes         string
	Items         []RefundItemInput
	CreatedBy     string

	// Voucher issuance parameters, used only when Method == voucher.
	CustomerID   *int
	Transferable bool
	ExpiresAt    *time.Time
}
