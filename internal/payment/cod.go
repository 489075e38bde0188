package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

// CODStrategy is cash on delivery: nothing is charged remotely.
type CODStrategy struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCODStrategy creates the cash-on-delivery strategy.
func NewCODStrategy(d Deps) *CODStrategy {
	return &CODStrategy{logger: d.Logger, now: d.Now}
}

func (s *CODStrategy) Provider() domain.Provider { return domain.ProviderInternal }

// ValidateAmount accepts any total; COD has no provider config.
func (s *CODStrategy) ValidateAmount(ctx context.Context, method domain.PaymentMethodName, total decimal.Decimal) error {
	return nil
}

// CreatePayment settles immediately.
func (s *CODStrategy) CreatePayment(ctx context.Context, req Request) (*CreateResult, error) {
	return &CreateResult{Settled: true}, nil
}

// Refund has nothing to reverse and reports success.
func (s *CODStrategy) Refund(ctx context.Context, o *domain.Order, amount decimal.Decimal, reason string) (*RefundResult, error) {
	s.logger.InfoContext(ctx, "cash order refund recorded", "order_id", o.ID, "amount", amount.StringFixed(2))
	return &RefundResult{
		RefundID: "cod-" + o.ID.String()[:8] + "-" + s.now().UTC().Format("20060102150405"),
		Amount:   amount,
		Status:   "succeeded",
	}, nil
}

// Void has nothing to reverse.
func (s *CODStrategy) Void(ctx context.Context, o *domain.Order) error {
	return nil
}
