package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/milkteahub/shop/internal/inventory"
	"github.com/milkteahub/shop/internal/loyalty"
	"github.com/milkteahub/shop/internal/models"
)

func TestCheckoutHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Oolong Milk Tea", 30_000, 10)
	coffee := env.seedProduct("Cold Brew", 40_000, 5)
	env.addToCart(user.ID, tea.ID, 2)
	env.addToCart(user.ID, coffee.ID, 1)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	require.Equal(t, int64(100_000), o.Subtotal)
	require.Equal(t, int64(10_000), o.ShippingFee)
	require.Equal(t, int64(110_000), o.Total)
	require.Equal(t, int64(500), o.PointsEarned)
	require.Equal(t, string(StatusPending), o.Status)
	require.True(t, strings.HasPrefix(o.Number, "ORD-20260901-"))
	require.Len(t, o.Items, 2)
	require.Equal(t, int64(30_000), o.Items[0].UnitPrice)

	require.Equal(t, int64(8), env.product(tea.ID).Stock)
	require.Equal(t, int64(2), env.product(tea.ID).Sold)
	require.Equal(t, int64(4), env.product(coffee.ID).Stock)

	// Points are credited at confirmation, not commit.
	require.Equal(t, int64(0), env.balance(user.ID))

	var cart []models.CartItem
	require.NoError(t, env.DB.Where("user_id = ?", user.ID).Find(&cart).Error)
	require.Empty(t, cart)
}

func TestCheckoutRedeemsPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(60_000)
	tea := env.seedProduct("Oolong Milk Tea", 50_000, 10)
	env.addToCart(user.ID, tea.ID, 2)

	req := checkoutReq()
	req.PointsToUse = 50_000

	o, err := env.Svc.Checkout(ctx, user.ID, req)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), o.Subtotal)
	require.Equal(t, int64(60_000), o.Total)
	require.Equal(t, int64(50_000), o.PointsUsed)
	require.Equal(t, int64(10_000), env.balance(user.ID))

	var ledger []models.LoyaltyTransaction
	require.NoError(t, env.DB.Where("user_id = ?", user.ID).Find(&ledger).Error)
	require.Len(t, ledger, 1)
	require.Equal(t, loyalty.TxUsed, ledger[0].Type)
	require.Equal(t, int64(-50_000), ledger[0].Amount)
	require.Equal(t, o.ID, *ledger[0].OrderID)
}

func TestCheckoutAppliesCappedVoucher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Taro Milk Tea", 100_000, 10)
	env.addToCart(user.ID, tea.ID, 3)

	require.NoError(t, env.DB.Create(&models.Voucher{
		Code:              "SAVE10",
		DiscountType:      "percentage",
		DiscountValue:     10,
		MaxDiscountAmount: 20_000,
		StartsAt:          env.now.Add(-time.Hour),
		EndsAt:            env.now.Add(time.Hour),
		UsageLimit:        5,
	}).Error)

	req := checkoutReq()
	req.VoucherCode = "save10"

	o, err := env.Svc.Checkout(ctx, user.ID, req)
	require.NoError(t, err)
	require.Equal(t, int64(300_000), o.Subtotal)
	require.Equal(t, int64(20_000), o.VoucherDiscount)
	require.Equal(t, int64(290_000), o.Total)
	require.Equal(t, "SAVE10", o.VoucherCode)

	var v models.Voucher
	require.NoError(t, env.DB.Where("code = ?", "SAVE10").First(&v).Error)
	require.Equal(t, int64(1), v.UsedCount)
}

func TestCheckoutDropsIneligibleVoucher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Lychee Tea", 40_000, 10)
	env.addToCart(user.ID, tea.ID, 1)

	req := checkoutReq()
	req.VoucherCode = "NOSUCHCODE"

	o, err := env.Svc.Checkout(ctx, user.ID, req)
	require.NoError(t, err)
	require.Equal(t, int64(0), o.VoucherDiscount)
	require.Empty(t, o.VoucherCode)
}

func TestCheckoutInsufficientStockAbortsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(1_000)
	tea := env.seedProduct("Peach Tea", 35_000, 2)
	env.addToCart(user.ID, tea.ID, 3)

	_, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.ErrorIs(t, err, ErrConflict)

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "Peach Tea", stockErr.ProductName)
	require.Equal(t, int64(2), stockErr.Available)
	require.Equal(t, int64(3), stockErr.Requested)

	require.Equal(t, int64(2), env.product(tea.ID).Stock)
	require.Equal(t, int64(0), env.product(tea.ID).Sold)

	var count int64
	require.NoError(t, env.DB.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)

	var cart []models.CartItem
	require.NoError(t, env.DB.Where("user_id = ?", user.ID).Find(&cart).Error)
	require.Len(t, cart, 1)
}

func TestCheckoutInsufficientPointsAbortsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(100)
	tea := env.seedProduct("Jasmine Tea", 30_000, 10)
	env.addToCart(user.ID, tea.ID, 1)

	req := checkoutReq()
	req.PointsToUse = 500

	_, err := env.Svc.Checkout(ctx, user.ID, req)
	require.ErrorIs(t, err, ErrConflict)

	var pointsErr *loyalty.InsufficientPointsError
	require.ErrorAs(t, err, &pointsErr)
	require.Equal(t, int64(100), pointsErr.Balance)
	require.Equal(t, int64(500), pointsErr.Requested)

	// The rollback must undo the stock reservation made earlier in the
	// transaction.
	require.Equal(t, int64(10), env.product(tea.ID).Stock)
	require.Equal(t, int64(100), env.balance(user.ID))

	var count int64
	require.NoError(t, env.DB.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(0)

	_, err := env.Svc.Checkout(context.Background(), user.ID, checkoutReq())
	require.ErrorIs(t, err, ErrValidation)
}

func TestCheckoutUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Svc.Checkout(context.Background(), 0, checkoutReq())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCancelWithinWindowRestoresEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(60_000)
	tea := env.seedProduct("Oolong Milk Tea", 50_000, 10)
	env.addToCart(user.ID, tea.ID, 2)

	req := checkoutReq()
	req.PointsToUse = 50_000
	o, err := env.Svc.Checkout(ctx, user.ID, req)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), env.balance(user.ID))

	env.advance(3 * time.Minute)
	require.NoError(t, env.Svc.Cancel(ctx, user.ID, o.ID, "changed my mind"))

	got := env.order(o.ID)
	require.Equal(t, string(StatusCancelled), got.Status)
	require.NotNil(t, got.CancelledAt)
	require.Equal(t, "changed my mind", got.CancelReason)

	require.Equal(t, int64(10), env.product(tea.ID).Stock)
	require.Equal(t, int64(0), env.product(tea.ID).Sold)
	require.Equal(t, int64(60_000), env.balance(user.ID))
}

func TestCancelAfterWindowRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Black Tea", 30_000, 5)
	env.addToCart(user.ID, tea.ID, 1)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	env.advance(6 * time.Minute)
	err = env.Svc.Cancel(ctx, user.ID, o.ID, "too slow")
	require.ErrorIs(t, err, ErrState)

	require.Equal(t, string(StatusPending), env.order(o.ID).Status)
	require.Equal(t, int64(4), env.product(tea.ID).Stock)
}

func TestCancelVoucherUsageStaysBurnt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Taro Milk Tea", 100_000, 10)
	env.addToCart(user.ID, tea.ID, 1)

	require.NoError(t, env.DB.Create(&models.Voucher{
		Code:          "KEEP",
		DiscountType:  "fixed",
		DiscountValue: 15_000,
		StartsAt:      env.now.Add(-time.Hour),
		EndsAt:        env.now.Add(time.Hour),
	}).Error)

	req := checkoutReq()
	req.VoucherCode = "KEEP"
	o, err := env.Svc.Checkout(ctx, user.ID, req)
	require.NoError(t, err)

	require.NoError(t, env.Svc.Cancel(ctx, user.ID, o.ID, "cancel"))

	var v models.Voucher
	require.NoError(t, env.DB.Where("code = ?", "KEEP").First(&v).Error)
	require.Equal(t, int64(1), v.UsedCount)
}

func TestRequestCancellationAfterWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Green Tea", 25_000, 5)
	env.addToCart(user.ID, tea.ID, 1)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	env.advance(10 * time.Minute)
	require.NoError(t, env.Svc.RequestCancellation(ctx, user.ID, o.ID, "please cancel"))

	got := env.order(o.ID)
	require.Equal(t, string(StatusPending), got.Status)
	require.NotNil(t, got.CancelRequestedAt)
	require.Equal(t, "please cancel", got.CancelRequestReason)
}

func TestOperatorCancelHasNoTimeLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Herbal Tea", 30_000, 5)
	env.addToCart(user.ID, tea.ID, 2)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	require.NoError(t, env.Svc.UpdateStatus(ctx, o.ID, StatusCancelled, "out of stock"))

	require.Equal(t, string(StatusCancelled), env.order(o.ID).Status)
	require.Equal(t, int64(5), env.product(tea.ID).Stock)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Milk Foam Tea", 30_000, 5)
	env.addToCart(user.ID, tea.ID, 1)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	err = env.Svc.UpdateStatus(ctx, o.ID, StatusDelivered, "")
	require.ErrorIs(t, err, ErrState)

	err = env.Svc.UpdateStatus(ctx, o.ID, "teleported", "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.seedUser(0)
	tea := env.seedProduct("Oolong Tea", 30_000, 5)
	env.addToCart(user.ID, tea.ID, 1)

	o, err := env.Svc.Checkout(ctx, user.ID, checkoutReq())
	require.NoError(t, err)

	for _, st := range []Status{StatusConfirmed, StatusPreparing, StatusShipping, StatusDelivered} {
		require.NoError(t, env.Svc.UpdateStatus(ctx, o.ID, st, ""))
	}

	err = env.Svc.Cancel(ctx, user.ID, o.ID, "no")
	require.ErrorIs(t, err, ErrState)
}
