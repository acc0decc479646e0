package loyalty

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/models"
)

const (
	TxEarned = "earned"
	TxUsed   = "used"
)

type InsufficientPointsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: balance %d, requested %d", e.Balance, e.Requested)
}

// Use debits amount from the user's balance and appends a "used" ledger row.
// The debit is conditional on the balance so a stale read can never drive it
// negative; the caller's transaction rolls everything back on failure.
func Use(tx *gorm.DB, userID uint, amount int64, orderID *uint, description string) error {
	if amount <= 0 {
		return errors.New("loyalty: amount must be > 0")
	}

	res := tx.Model(&models.User{}).
		Where("id = ? AND points >= ?", userID, amount).
		Update("points", gorm.Expr("points - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var u models.User
		if err := tx.First(&u, userID).Error; err != nil {
			return err
		}
		return &InsufficientPointsError{Balance: u.Points, Requested: amount}
	}

	return tx.Create(&models.LoyaltyTransaction{
		UserID:      userID,
		Type:        TxUsed,
		Amount:      -amount,
		OrderID:     orderID,
		Description: description,
	}).Error
}

// Earn credits amount to the user's balance and appends an "earned" row.
func Earn(tx *gorm.DB, userID uint, amount int64, orderID *uint, description string) error {
	if amount <= 0 {
		return errors.New("loyalty: amount must be > 0")
	}

	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("points", gorm.Expr("points + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return tx.Create(&models.LoyaltyTransaction{
		UserID:      userID,
		Type:        TxEarned,
		Amount:      amount,
		OrderID:     orderID,
		Description: description,
	}).Error
}

// Refund credits back whatever the order debited. It sums the order's "used"
// rows rather than trusting the order record, so it reverses exactly the
// ledger effects that were applied.
func Refund(tx *gorm.DB, userID, orderID uint, description string) (int64, error) {
	var debited int64
	err := tx.Model(&models.LoyaltyTransaction{}).
		Where("order_id = ? AND user_id = ? AND type = ?", orderID, userID, TxUsed).
		Select("COALESCE(SUM(-amount), 0)").
		Scan(&debited).Error
	if err != nil {
		return 0, err
	}
	if debited <= 0 {
		return 0, nil
	}

	oid := orderID
	if err := Earn(tx, userID, debited, &oid, description); err != nil {
		return 0, err
	}
	return debited, nil
}

// Balance reports the user's current balance from the user row; the ledger is
// the audit trail and must sum to the same number.
func Balance(tx *gorm.DB, userID uint) (int64, error) {
	var u models.User
	if err := tx.First(&u, userID).Error; err != nil {
		return 0, err
	}
	return u.Points, nil
}
