package core

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	// refundNumberPrefix + zero-padded counter, e.g. DEV000123.
	refundNumberPrefix = "DEV"
	refundNumberWidth  = 6

	// Voucher codes exclude ambiguous glyphs (0/O, 1/I) so they survive
	// being read over the phone or typed from a printed slip.
	voucherCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	voucherCodeLength  = 10
	maxCodeAttempts    = 5
)

// nextRefundNumberTx allocates the next refund number for a company
// inside the caller's transaction. The upsert increment is a single
// atomic statement, so concurrent creations never read the same value;
// if the enclosing transaction aborts, the increment rolls back with it.
func nextRefundNumberTx(ctx context.Context, tx pgx.Tx, companyID int) (string, error) {
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO refund_sequences (company_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (company_id)
		DO UPDATE SET last_number = refund_sequences.last_number + 1
		RETURNING last_number
	`, companyID).Scan(&lastNumber)
	if err != nil {
		return "", storagef(err, "failed to allocate refund number for company %d", companyID)
	}
	return formatRefundNumber(lastNumber), nil
}

func formatRefundNumber(n int64) string {
	return fmt.Sprintf("%s%0*d", refundNumberPrefix, refundNumberWidth, n)
}

// generateVoucherCode returns a random fixed-length uppercase code.
// Uniqueness is not guaranteed here; the issuing insert checks for
// collisions and the caller retries up to maxCodeAttempts.
func generateVoucherCode() (string, error) {
	buf := make([]byte, voucherCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = voucherCodeCharset[int(b)%len(voucherCodeCharset)]
	}
	return string(buf), nil
}
