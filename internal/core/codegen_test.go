package core

import (
	"strings"
	"testing"
)

func TestFormatRefundNumber(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{1, "DEV000001"},
		{42, "DEV000042"},
		{123456, "DEV123456"},
		// The counter keeps working past the padded width.
		{1234567, "DEV1234567"},
	}
	for _, c := range cases {
		if got := formatRefundNumber(c.n); got != c.want {
			t.Errorf("formatRefundNumber(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestGenerateVoucherCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := generateVoucherCode()
		if err != nil {
			t.Fatalf("generateVoucherCode failed: %v", err)
		}
		if len(code) != voucherCodeLength {
			t.Fatalf("Expected length %d, got %d (%q)", voucherCodeLength, len(code), code)
		}
		for _, r := range code {
			if !strings.ContainsRune(voucherCodeCharset, r) {
				t.Fatalf("Code %q contains %q outside the charset", code, r)
			}
		}
		seen[code] = true
	}
	// 100 draws from a 32^10 space colliding would mean broken randomness.
	if len(seen) != 100 {
		t.Errorf("Expected 100 distinct codes, got %d", len(seen))
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&NotFoundError{Entity: "voucher", Ref: "7"}, CodeNotFound},
		{&InvalidTransitionError{Entity: "refund", From: "completed", Action: "approved"}, CodeInvalidTransition},
		{&AlreadyFinalizedError{Entity: "refund", Status: "cancelled"}, CodeAlreadyFinalized},
		{&VoucherNotActiveError{Code: "ABC", Status: VoucherExpired}, CodeVoucherNotActive},
		{&VoucherNotTransferableError{Code: "ABC"}, CodeVoucherNotTransferable},
		{&InsufficientBalanceError{Code: "ABC"}, CodeInsufficientBalance},
		{&ValidationError{Msg: "bad"}, CodeValidation},
		{&CodeGenerationError{Attempts: 5}, CodeGenerationExhausted},
		{&StorageError{Op: "insert", Err: nil}, CodeStorageFailure},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Errorf("ErrorCode(%T) = %q, want %q", c.err, got, c.want)
		}
	}
}
