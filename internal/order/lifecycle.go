package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/models"
)

// stage describes one time-gated auto-transition: orders sitting in `from`
// longer than `after` (measured from tsColumn) move to `to`.
type stage struct {
	from     Status
	to       Status
	after    time.Duration
	tsColumn string
}

var stages = []stage{
	{StatusPending, StatusConfirmed, confirmAfter, "created_at"},
	{StatusConfirmed, StatusPreparing, prepareAfter, "confirmed_at"},
	{StatusPreparing, StatusShipping, shipAfter, "preparing_at"},
	{StatusShipping, StatusDelivered, deliverAfter, "shipping_at"},
}

// Run drives the sweep on a fixed interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.Log.Info("lifecycle sweep started", "interval", every)
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("lifecycle sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep advances every order whose time in its current status has elapsed.
// Each order is transitioned in its own transaction; one order failing is
// logged and never aborts the rest of the pass.
func (s *Service) Sweep(ctx context.Context) {
	now := s.Now()

	for _, st := range stages {
		var due []models.Order
		err := s.DB.WithContext(ctx).
			Where("status = ? AND "+st.tsColumn+" <= ?", string(st.from), now.Add(-st.after)).
			Find(&due).Error
		if err != nil {
			s.Log.Error("sweep query failed", "from", st.from, "error", err)
			continue
		}

		for i := range due {
			o := due[i]
			err := s.withRetry(ctx, func(tx *gorm.DB) error {
				return s.transition(tx, &o, st.to, CauseTimer)
			})
			switch {
			case err == nil:
				if st.to == StatusConfirmed {
					s.Notifier.OrderConfirmed(ctx, o.UserID, &o)
					if o.PointsEarned > 0 {
						s.Notifier.Reward(ctx, o.UserID, o.PointsEarned, o.Number)
					}
				}
			case errors.Is(err, ErrConflict):
				// Someone else moved the order first; nothing to do.
			default:
				s.Log.Error("sweep transition failed",
					"order", o.ID, "from", st.from, "to", st.to, "error", err)
			}
		}
	}
}

// OnReviewCreated is the hook the review subsystem calls after persisting a
// review. A review on a still-pending order jumps it straight to shipping,
// skipping the confirmed and preparing stages.
func (s *Service) OnReviewCreated(ctx context.Context, orderID uint) error {
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if Status(o.Status) != StatusPending {
			return nil
		}
		return s.transition(tx, &o, StatusShipping, CauseReview)
	})
}
