package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/inventory"
	"github.com/milkteahub/shop/internal/loyalty"
	"github.com/milkteahub/shop/internal/models"
	"github.com/milkteahub/shop/internal/notify"
	"github.com/milkteahub/shop/internal/pricing"
	"github.com/milkteahub/shop/internal/voucher"
)

var (
	ErrValidation   = errors.New("validation")   // 400
	ErrUnauthorized = errors.New("unauthorized") // 401
	ErrNotFound     = errors.New("not found")    // 404
	ErrConflict     = errors.New("conflict")     // 409
	ErrState        = errors.New("illegal state")
	ErrTransient    = errors.New("transient failure")
)

type Service struct {
	DB       *gorm.DB
	Notifier notify.Notifier
	Log      *slog.Logger

	// Now is swappable so tests can steer the clock.
	Now func() time.Time
}

func NewService(db *gorm.DB, n notify.Notifier, log *slog.Logger) *Service {
	return &Service{DB: db, Notifier: n, Log: log, Now: time.Now}
}

type CheckoutRequest struct {
	ShippingMethod string `json:"shipping_method"`
	PaymentMethod  string `json:"payment_method"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Notes          string `json:"notes"`
	VoucherCode    string `json:"voucher_code"`
	PointsToUse    int64  `json:"points_to_use"`
}

// Checkout converts the user's cart into a priced order in one transaction:
// pricing, loyalty debit, stock reservation, order + item rows, voucher
// redemption and cart clearing all commit or roll back together. The
// order-created notification goes out after commit, best effort.
func (s *Service) Checkout(ctx context.Context, userID uint, req CheckoutRequest) (*models.Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if req.Address == "" || req.Phone == "" {
		return nil, fmt.Errorf("%w: address and phone required", ErrValidation)
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: payment method required", ErrValidation)
	}
	if req.PointsToUse < 0 {
		return nil, fmt.Errorf("%w: points_to_use must be >= 0", ErrValidation)
	}

	now := s.Now()
	var order models.Order

	txErr := s.withRetry(ctx, func(tx *gorm.DB) error {
		var cart []models.CartItem
		if err := tx.Where("user_id = ?", userID).Find(&cart).Error; err != nil {
			return err
		}
		if len(cart) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		lines := make([]pricing.Line, 0, len(cart))
		items := make([]models.OrderItem, 0, len(cart))
		qtys := make([]inventory.ItemQty, 0, len(cart))

		for _, it := range cart {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
				}
				return err
			}

			unit := pricing.ResolveUnitPrice(&p, it.Size)
			lines = append(lines, pricing.Line{ProductID: p.ID, Quantity: it.Quantity, UnitPrice: unit})
			items = append(items, models.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				UnitPrice:   unit,
				Size:        it.Size,
				Ice:         it.Ice,
				Sugar:       it.Sugar,
				Notes:       it.Notes,
			})
			qtys = append(qtys, inventory.ItemQty{ProductID: p.ID, Quantity: it.Quantity})
		}

		var subtotal int64
		for _, l := range lines {
			subtotal += l.Quantity * l.UnitPrice
		}

		var discount int64
		var applied *models.Voucher
		if req.VoucherCode != "" {
			v, d, err := voucher.Validate(tx, req.VoucherCode, subtotal, now)
			switch {
			case err == nil:
				discount = d
				applied = v
			case errors.Is(err, voucher.ErrNotEligible):
				// A failing voucher is dropped, not a checkout failure.
				s.Log.Info("voucher dropped", "code", req.VoucherCode, "reason", err)
			default:
				return err
			}
		}

		quote, err := pricing.Compute(lines, req.ShippingMethod, req.PointsToUse, discount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		if err := inventory.Reserve(tx, qtys); err != nil {
			var stockErr *inventory.InsufficientStockError
			if errors.As(err, &stockErr) {
				return fmt.Errorf("%w: %w", ErrConflict, stockErr)
			}
			return err
		}

		appliedCode := ""
		if applied != nil {
			appliedCode = applied.Code
		}
		order = models.Order{
			UserID:          userID,
			Number:          newOrderNumber(now),
			Status:          string(StatusPending),
			PaymentMethod:   req.PaymentMethod,
			Subtotal:        quote.Subtotal,
			ShippingFee:     quote.ShippingFee,
			ShippingMethod:  req.ShippingMethod,
			VoucherCode:     appliedCode,
			VoucherDiscount: quote.Discount,
			PointsUsed:      quote.PointsUsed,
			PointsEarned:    quote.PointsEarned,
			Total:           quote.Total,
			Address:         req.Address,
			Phone:           req.Phone,
			Notes:           req.Notes,
			CreatedAt:       now,
			Items:           items,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		if quote.PointsUsed > 0 {
			err := loyalty.Use(tx, userID, quote.PointsUsed, &order.ID,
				fmt.Sprintf("Redeemed on order %s", order.Number))
			var pointsErr *loyalty.InsufficientPointsError
			if errors.As(err, &pointsErr) {
				return fmt.Errorf("%w: %w", ErrConflict, pointsErr)
			}
			if err != nil {
				return err
			}
		}

		if applied != nil {
			if err := voucher.Redeem(tx, applied.ID); err != nil {
				if errors.Is(err, voucher.ErrCapReached) {
					return fmt.Errorf("%w: %w", ErrConflict, err)
				}
				return err
			}
		}

		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})
	if txErr != nil {
		return nil, txErr
	}

	s.Notifier.OrderCreated(ctx, userID, &order)
	return &order, nil
}

// Cancel is the user-facing path: own order only, from pending, confirmed or
// preparing, and within CancelWindow of creation. Stock and debited points
// are restored in the same transaction; voucher usage stays burnt.
func (s *Service) Cancel(ctx context.Context, userID, orderID uint, reason string) error {
	if userID == 0 {
		return ErrUnauthorized
	}

	return s.withRetry(ctx, func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Where("id = ? AND user_id = ?", orderID, userID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		if !cancellable(Status(o.Status)) {
			return fmt.Errorf("%w: cannot cancel a %s order", ErrState, o.Status)
		}
		if s.Now().Sub(o.CreatedAt) > CancelWindow {
			return fmt.Errorf("%w: cancellation window of %s elapsed, submit a cancellation request instead",
				ErrState, CancelWindow)
		}

		return s.cancelLocked(tx, &o, reason)
	})
}

// RequestCancellation records the user's wish after the window has closed.
// It has no effect on the order until an operator acts on it.
func (s *Service) RequestCancellation(ctx context.Context, userID, orderID uint, reason string) error {
	if userID == 0 {
		return ErrUnauthorized
	}

	return s.withRetry(ctx, func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Where("id = ? AND user_id = ?", orderID, userID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if !cancellable(Status(o.Status)) {
			return fmt.Errorf("%w: cannot request cancellation of a %s order", ErrState, o.Status)
		}

		now := s.Now()
		return tx.Model(&o).Updates(map[string]interface{}{
			"cancel_requested_at":   now,
			"cancel_request_reason": reason,
		}).Error
	})
}

// UpdateStatus is the operator path. Transitions are checked against the
// table; operator cancellation carries no time restriction.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, to Status, reason string) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	var confirmed *models.Order
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		from := Status(o.Status)
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrState, from, to)
		}

		if to == StatusCancelled {
			return s.cancelLocked(tx, &o, reason)
		}
		if err := s.transition(tx, &o, to, CauseOperator); err != nil {
			return err
		}
		if to == StatusConfirmed {
			confirmed = &o
		}
		return nil
	})
	if err != nil {
		return err
	}

	if confirmed != nil {
		s.Notifier.OrderConfirmed(ctx, confirmed.UserID, confirmed)
		if confirmed.PointsEarned > 0 {
			s.Notifier.Reward(ctx, confirmed.UserID, confirmed.PointsEarned, confirmed.Number)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	var o models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("id = ? AND user_id = ?", orderID, userID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &o, nil
}

func (s *Service) List(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var orders []models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&orders).Error
	return orders, err
}

func cancellable(st Status) bool {
	return st == StatusPending || st == StatusConfirmed || st == StatusPreparing
}

// transition flips the status with a guard on the previous one, so a racing
// sweep or operator loses cleanly instead of double-applying side effects.
// Confirmation is the single point where earned points are credited.
func (s *Service) transition(tx *gorm.DB, o *models.Order, to Status, cause Cause) error {
	now := s.Now()
	updates := map[string]interface{}{"status": string(to)}
	switch to {
	case StatusConfirmed:
		updates["confirmed_at"] = now
	case StatusPreparing:
		updates["preparing_at"] = now
	case StatusShipping:
		updates["shipping_at"] = now
	case StatusDelivered:
		updates["delivered_at"] = now
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d left status %s", ErrConflict, o.ID, o.Status)
	}

	if to == StatusConfirmed && o.PointsEarned > 0 {
		oid := o.ID
		if err := loyalty.Earn(tx, o.UserID, o.PointsEarned, &oid,
			fmt.Sprintf("Points earned on order %s", o.Number)); err != nil {
			return err
		}
	}

	s.Log.Info("order transition",
		"order", o.ID, "number", o.Number,
		"from", o.Status, "to", to, "cause", cause)
	o.Status = string(to)
	return nil
}

// cancelLocked flips the order to cancelled and compensates: stock back,
// debited points refunded. Voucher used_count is intentionally not reversed.
func (s *Service) cancelLocked(tx *gorm.DB, o *models.Order, reason string) error {
	now := s.Now()
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(map[string]interface{}{
			"status":        string(StatusCancelled),
			"cancelled_at":  now,
			"cancel_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d left status %s", ErrConflict, o.ID, o.Status)
	}

	var items []models.OrderItem
	if err := tx.Where("order_id = ?", o.ID).Find(&items).Error; err != nil {
		return err
	}
	qtys := make([]inventory.ItemQty, 0, len(items))
	for _, it := range items {
		qtys = append(qtys, inventory.ItemQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := inventory.Release(tx, qtys); err != nil {
		return err
	}

	refunded, err := loyalty.Refund(tx, o.UserID, o.ID,
		fmt.Sprintf("Refund for cancelled order %s", o.Number))
	if err != nil {
		return err
	}

	s.Log.Info("order cancelled",
		"order", o.ID, "number", o.Number, "reason", reason, "points_refunded", refunded)
	o.Status = string(StatusCancelled)
	return nil
}

const maxTxAttempts = 3

// withRetry runs fn in a transaction, retrying a bounded number of times on
// lock contention so callers get ErrTransient instead of hanging.
func (s *Service) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(fn)
		if err == nil || !isLockError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func isLockError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "lock timeout")
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
