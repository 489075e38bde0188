package payment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/domain"
)

// CheckRefundPolicy applies a gateway's refund window and partial-refund
// rules. amount has already been checked against the refundable remainder.
func CheckRefundPolicy(cfg *domain.ProviderConfig, o *domain.Order, amount decimal.Decimal, now time.Time) error {
	const op = "payment.refundPolicy"
	if cfg.RefundWindowHours > 0 && o.PaidAt != nil {
		deadline := o.PaidAt.Add(time.Duration(cfg.RefundWindowHours) * time.Hour)
		if now.After(deadline) {
			return domain.WithOp(domain.ErrRefundWindowExpired, op)
		}
	}
	if !cfg.AllowPartialRefund && amount.LessThan(o.TotalPrice) {
		return domain.WithOp(domain.ErrPartialRefundNotAllowed, op)
	}
	return nil
}

const correlationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCorrelationID returns an 8-character id for one aggregator attempt.
func NewCorrelationID() (string, error) {
	b := make([]byte, 8)
	n := big.NewInt(int64(len(correlationAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to generate correlation id: %w", err)
		}
		b[i] = correlationAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// gatewayLine is one line of an itemised gateway payload.
type gatewayLine struct {
	name     string
	unit     int64
	quantity int64
}

// gatewayLines itemises an order for a gateway that requires line amounts
// to sum to the charged total. Gateways reject negative lines, so when a
// coupon discount applies the items collapse into a single order line.
func gatewayLines(o *domain.Order) []gatewayLine {
	var lines []gatewayLine
	var sum int64
	for _, it := range o.Items {
		unit := billing.ToMinorUnits(it.UnitPrice)
		lines = append(lines, gatewayLine{name: it.Name, unit: unit, quantity: int64(it.Quantity)})
		sum += unit * int64(it.Quantity)
	}

	itemsTotal := billing.ToMinorUnits(o.TotalPrice.Sub(o.DeliveryFee))
	if sum != itemsTotal {
		lines = []gatewayLine{{name: fmt.Sprintf("Order %s", shortID(o)), unit: itemsTotal, quantity: 1}}
	}
	if o.DeliveryFee.IsPositive() {
		lines = append(lines, gatewayLine{name: "Delivery fee", unit: billing.ToMinorUnits(o.DeliveryFee), quantity: 1})
	}
	return lines
}

func shortID(o *domain.Order) string {
	return o.ID.String()[:8]
}
