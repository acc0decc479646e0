package order

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/config"
	"github.com/milkteahub/shop/internal/models"
	"github.com/milkteahub/shop/internal/notify"
)

type testEnv struct {
	T   *testing.T
	DB  *gorm.DB
	Svc *Service

	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	env := &testEnv{
		T:   t,
		DB:  db,
		now: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	env.Svc = NewService(db, notify.Nop{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	env.Svc.Now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) seedUser(points int64) models.User {
	u := models.User{Username: "customer", Points: points}
	require.NoError(e.T, e.DB.Create(&u).Error)
	return u
}

func (e *testEnv) seedProduct(name string, price, stock int64) models.Product {
	p := models.Product{Name: name, Price: price, Stock: stock}
	require.NoError(e.T, e.DB.Create(&p).Error)
	return p
}

func (e *testEnv) addToCart(userID, productID uint, qty int64) {
	require.NoError(e.T, e.DB.Create(&models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		Size:      "M",
	}).Error)
}

func (e *testEnv) product(id uint) models.Product {
	var p models.Product
	require.NoError(e.T, e.DB.First(&p, id).Error)
	return p
}

func (e *testEnv) order(id uint) models.Order {
	var o models.Order
	require.NoError(e.T, e.DB.First(&o, id).Error)
	return o
}

func (e *testEnv) balance(userID uint) int64 {
	var u models.User
	require.NoError(e.T, e.DB.First(&u, userID).Error)
	return u.Points
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{
		ShippingMethod: "standard",
		PaymentMethod:  "cod",
		Address:        "12 Nguyen Hue",
		Phone:          "0901234567",
	}
}
