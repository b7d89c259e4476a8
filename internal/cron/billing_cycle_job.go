package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
)

type billingRunner interface {
	RunBillingCycle(ctx context.Context, now time.Time) (*subscriptions.BillingCycleResult, error)
}

// BillingCycleJobParams configure the monthly generation job.
type BillingCycleJobParams struct {
	Logger        *logger.Logger
	Subscriptions billingRunner
}

// NewBillingCycleJob wraps the subscription renewal batch as a worker
// job.
func NewBillingCycleJob(params BillingCycleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	return &billingCycleJob{
		logg: params.Logger,
		subs: params.Subscriptions,
		now:  time.Now,
	}, nil
}

type billingCycleJob struct {
	logg *logger.Logger
	subs billingRunner
	now  func() time.Time
}

func (j *billingCycleJob) Name() string { return "billing-cycle" }

func (j *billingCycleJob) Run(ctx context.Context) error {
	result, err := j.subs.RunBillingCycle(ctx, j.now())
	if result != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"generated":      result.Generated,
			"errors":         result.Errors,
			"overdue_marked": result.OverdueMarked,
		})
		j.logg.Info(logCtx, "billing cycle job result")
	}
	if err != nil {
		return fmt.Errorf("billing cycle: %w", err)
	}
	return nil
}
