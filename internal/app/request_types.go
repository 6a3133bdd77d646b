package app

// CreateRefundRequest is the transport-level refund creation payload.
// Monetary amounts and quantities travel as strings and are parsed with
// shopspring/decimal; malformed values fail validation before any
// storage work happens.
type CreateRefundRequest struct {
	SaleID        int                 `json:"sale_id"`
	RefundType    string              `json:"refund_type"`   // "full" | "partial"
	RefundMethod  string              `json:"refund_method"` // "voucher" | "cash"
	Reason        string              `json:"reason"`
	ReasonDetails string              `json:"reason_details"`
	Notes         string              `json:"notes"`
	Items         []RefundItemRequest `json:"items"`
	Actor         string              `json:"-"` // filled from auth claims, never from the body

	// Voucher issuance fields, honored only when refund_method is "voucher".
	CustomerID    *int   `json:"customer_id,omitempty"`
	Transferable  bool   `json:"is_transferable"`
	ExpiresAt     string `json:"expires_at,omitempty"` // RFC 3339, empty means no expiry
}

type RefundItemRequest struct {
	ProductID   int    `json:"product_id"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Condition   string `json:"condition"`
	Destination string `json:"destination"` // "stock" | "exchange" | "loss"
}

// RedeemRequest is the transport-level redemption payload.
type RedeemRequest struct {
	Amount            string `json:"amount"`
	SaleID            int    `json:"sale_id"`
	CustomerDocument  string `json:"customer_document,omitempty"`
	Actor             string `json:"-"` // filled from auth claims
}

// CancelRefundRequest carries the mandatory cancellation reason.
type CancelRefundRequest struct {
	Reason string `json:"reason"`
}
