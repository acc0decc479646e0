package pricing

import (
	"errors"
	"fmt"

	"github.com/milkteahub/shop/internal/models"
)

var ErrUnknownShippingMethod = errors.New("unknown shipping method")

const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"

	standardFee = 10_000
	expressFee  = 25_000

	// Upsized drinks carry a flat surcharge on top of the resolved price.
	SizeL           = "L"
	upsizeSurcharge = 5_000

	// 100 points for every full 20 000 of subtotal; shipping never earns points.
	earnStep   = 20_000
	earnPoints = 100
)

type Line struct {
	ProductID uint
	Quantity  int64
	UnitPrice int64
}

type Quote struct {
	Subtotal     int64
	ShippingFee  int64
	Discount     int64
	PointsUsed   int64
	PointsEarned int64
	Total        int64
}

// ResolveUnitPrice returns the price a unit is sold at right now: the sale
// price when one is set, the list price otherwise, plus the upsize surcharge.
func ResolveUnitPrice(p *models.Product, size string) int64 {
	price := p.Price
	if p.SalePrice > 0 {
		price = p.SalePrice
	}
	if size == SizeL {
		price += upsizeSurcharge
	}
	return price
}

func ShippingFee(method string) (int64, error) {
	switch method {
	case ShippingStandard:
		return standardFee, nil
	case ShippingExpress:
		return expressFee, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownShippingMethod, method)
	}
}

// Compute prices an order. The caller guarantees lines is non-empty and that
// pointsUsed has been checked against the user's balance; discount comes from
// the voucher package. 1 point redeems 1 currency unit.
func Compute(lines []Line, shippingMethod string, pointsUsed, discount int64) (Quote, error) {
	fee, err := ShippingFee(shippingMethod)
	if err != nil {
		return Quote{}, err
	}

	var subtotal int64
	for _, l := range lines {
		subtotal += l.Quantity * l.UnitPrice
	}

	total := subtotal + fee - pointsUsed - discount
	if total < 0 {
		total = 0
	}

	return Quote{
		Subtotal:     subtotal,
		ShippingFee:  fee,
		Discount:     discount,
		PointsUsed:   pointsUsed,
		PointsEarned: subtotal / earnStep * earnPoints,
		Total:        total,
	}, nil
}
