package voucher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/models"
)

const (
	TypePercentage = "percentage"
	TypeFixed      = "fixed"
)

// ErrNotEligible marks every soft rejection: checkout drops the voucher and
// proceeds without a discount instead of failing.
var (
	ErrNotEligible = errors.New("voucher not eligible")
	ErrCapReached  = errors.New("voucher usage limit reached")
)

// Validate looks up an active voucher by case-normalized code and prices its
// discount against the given subtotal. Every rejection wraps ErrNotEligible.
func Validate(tx *gorm.DB, code string, subtotal int64, now time.Time) (*models.Voucher, int64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, 0, fmt.Errorf("%w: empty code", ErrNotEligible)
	}

	var v models.Voucher
	if err := tx.Where("code = ?", code).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, fmt.Errorf("%w: code %s not found", ErrNotEligible, code)
		}
		return nil, 0, err
	}

	if now.Before(v.StartsAt) || now.After(v.EndsAt) {
		return nil, 0, fmt.Errorf("%w: outside validity window", ErrNotEligible)
	}
	if v.UsageLimit > 0 && v.UsedCount >= v.UsageLimit {
		return nil, 0, fmt.Errorf("%w: %w", ErrNotEligible, ErrCapReached)
	}
	if subtotal < v.MinOrderAmount {
		return nil, 0, fmt.Errorf("%w: subtotal below minimum %d", ErrNotEligible, v.MinOrderAmount)
	}

	return &v, Discount(&v, subtotal), nil
}

func Discount(v *models.Voucher, subtotal int64) int64 {
	switch v.DiscountType {
	case TypePercentage:
		d := subtotal * v.DiscountValue / 100
		if v.MaxDiscountAmount > 0 && d > v.MaxDiscountAmount {
			d = v.MaxDiscountAmount
		}
		return d
	case TypeFixed:
		if v.DiscountValue > subtotal {
			return subtotal
		}
		return v.DiscountValue
	default:
		return 0
	}
}

// Redeem burns one use-slot. The increment is conditional on the cap so two
// concurrent orders cannot push used_count past usage_limit; cancellation
// never gives the slot back.
func Redeem(tx *gorm.DB, voucherID uint) error {
	res := tx.Model(&models.Voucher{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", voucherID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCapReached
	}
	return nil
}
