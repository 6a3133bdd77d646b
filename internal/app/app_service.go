package app

import (
	"context"
	"fmt"
	"time"

	"refund-ledger/internal/core"

	"github.com/shopspring/decimal"
)

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &core.ValidationError{Msg: fmt.Sprintf("invalid %s %q", field, raw)}
	}
	return d, nil
}

func (s *appService) CreateRefund(ctx context.Context, companyID int, req CreateRefundRequest) (*RefundResult, error) {
	items := make([]core.RefundItemInput, 0, len(req.Items))
	for i, item := range req.Items {
		qty, err := parseAmount(fmt.Sprintf("item %d quantity", i+1), item.Quantity)
		if err != nil {
			return nil, err
		}
		price, err := parseAmount(fmt.Sprintf("item %d unit_price", i+1), item.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, core.RefundItemInput{
			ProductID:   item.ProductID,
			Quantity:    qty,
			UnitPrice:   price,
			Condition:   item.Condition,
			Destination: core.ItemDestination(item.Destination),
		})
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, &core.ValidationError{Msg: fmt.Sprintf("invalid expires_at %q: expected RFC 3339", req.ExpiresAt)}
		}
		expiresAt = &t
	}

	refund, err := s.refunds.CreateRefund(ctx, companyID, core.CreateRefundInput{
		SaleID:        req.SaleID,
		Type:          core.RefundType(req.RefundType),
		Method:        core.RefundMethod(req.RefundMethod),
		Reason:        req.Reason,
		ReasonDetails: req.ReasonDetails,
		Notes:         req.Notes,
		Items:         items,
		CreatedBy:     req.Actor,
		CustomerID:    req.CustomerID,
		Transferable:  req.Transferable,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return s.refundResult(ctx, companyID, refund)
}

// refundResult attaches the owned voucher, if any, to the response.
func (s *appService) refundResult(ctx context.Context, companyID int, refund *core.Refund) (*RefundResult, error) {
	result := &RefundResult{Refund: refund}
	if refund.VoucherID != nil {
		voucher, err := s.vouchers.GetVoucher(ctx, companyID, *refund.VoucherID)
		if err != nil {
			return nil, err
		}
		result.Voucher = voucher
	}
	return result, nil
}

func (s *appService) ApproveRefund(ctx context.Context, companyID, refundID int, actor string) (*RefundResult, error) {
	refund, err := s.refunds.ApproveRefund(ctx, companyID, refundID, actor)
	if err != nil {
		return nil, err
	}
	return &RefundResult{Refund: refund}, nil
}

func (s *appService) CompleteRefund(ctx context.Context, companyID, refundID int, actor string) (*RefundResult, error) {
	refund, err := s.refunds.CompleteRefund(ctx, companyID, refundID, actor)
	if err != nil {
		return nil, err
	}
	return &RefundResult{Refund: refund}, nil
}

func (s *appService) CancelRefund(ctx context.Context, companyID, refundID int, actor, reason string) (*RefundResult, error) {
	refund, err := s.refunds.CancelRefund(ctx, companyID, refundID, actor, reason)
	if err != nil {
		return nil, err
	}
	return s.refundResult(ctx, companyID, refund)
}

func (s *appService) GetRefund(ctx context.Context, companyID, refundID int) (*RefundResult, error) {
	refund, err := s.refunds.GetRefund(ctx, companyID, refundID)
	if err != nil {
		return nil, err
	}
	return s.refundResult(ctx, companyID, refund)
}

func (s *appService) ListRefunds(ctx context.Context, companyID int, status string) (*RefundListResult, error) {
	var filter *core.RefundStatus
	if status != "" {
		st := core.RefundStatus(status)
		switch st {
		case core.RefundPending, core.RefundApproved, core.RefundCompleted, core.RefundCancelled:
			filter = &st
		default:
			return nil, &core.ValidationError{Msg: fmt.Sprintf("invalid status filter %q", status)}
		}
	}

	refunds, err := s.refunds.ListRefunds(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	return &RefundListResult{Refunds: refunds}, nil
}

func (s *appService) LookupVoucher(ctx context.Context, companyID int, code string) (*VoucherResult, error) {
	voucher, err := s.vouchers.LookupByCode(ctx, companyID, code)
	if err != nil {
		return nil, err
	}
	return &VoucherResult{Voucher: voucher}, nil
}

func (s *appService) RedeemVoucher(ctx context.Context, companyID, voucherID int, req RedeemRequest) (*RedemptionResult, error) {
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	redemption, err := s.vouchers.Redeem(ctx, companyID, voucherID, core.RedeemInput{
		Amount:            amount,
		SaleID:            req.SaleID,
		UsedBy:            req.Actor,
		PresentedDocument: req.CustomerDocument,
	})
	if err != nil {
		return nil, err
	}
	return &RedemptionResult{Redemption: redemption}, nil
}

func (s *appService) CancelVoucher(ctx context.Context, companyID, voucherID int, actor string) (*VoucherResult, error) {
	voucher, err := s.vouchers.CancelVoucher(ctx, companyID, voucherID, actor)
	if err != nil {
		return nil, err
	}
	return &VoucherResult{Voucher: voucher}, nil
}

func (s *appService) GetVoucherHistory(ctx context.Context, companyID, voucherID int) (*VoucherHistoryResult, error) {
	usages, err := s.vouchers.History(ctx, companyID, voucherID)
	if err != nil {
		return nil, err
	}
	return &VoucherHistoryResult{VoucherID: voucherID, Usages: usages}, nil
}

func (s *appService) GetStockLevels(ctx context.Context, companyID int) (*StockResult, error) {
	levels, err := s.stock.GetStockLevels(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels}, nil
}
