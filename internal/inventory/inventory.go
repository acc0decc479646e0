package inventory

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/models"
)

type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

type ItemQty struct {
	ProductID uint
	Quantity  int64
}

// Reserve decrements stock and increments sold for every item. Each update is
// conditional on stock >= quantity, so concurrent checkouts cannot oversell;
// the first failing item aborts with the product named and the whole
// enclosing transaction rolls back.
func Reserve(tx *gorm.DB, items []ItemQty) error {
	for _, it := range items {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
			Updates(map[string]interface{}{
				"stock": gorm.Expr("stock - ?", it.Quantity),
				"sold":  gorm.Expr("sold + ?", it.Quantity),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				return err
			}
			return &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   it.Quantity,
			}
		}
	}
	return nil
}

// Release reverses Reserve by the original quantities. The caller guards it
// with the order's status transition so it runs at most once per order.
func Release(tx *gorm.DB, items []ItemQty) error {
	for _, it := range items {
		res := tx.Model(&models.Product{}).
			Where("id = ?", it.ProductID).
			Updates(map[string]interface{}{
				"stock": gorm.Expr("stock + ?", it.Quantity),
				"sold":  gorm.Expr("sold - ?", it.Quantity),
			})
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}
