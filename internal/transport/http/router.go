package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/handlers"
)

type Deps struct {
	DB            *gorm.DB
	CartHandler   *handlers.CartHandler
	OrderHandler  *handlers.OrderHandler
	ReviewHandler *handlers.ReviewHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	cart := v1.Group("/cart")
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.DeleteOneFromCart)
	cart.DELETE("/:id/all", d.CartHandler.DeleteAllFromCart)

	orders := v1.Group("/orders")
	orders.POST("", d.OrderHandler.Checkout)
	orders.GET("", d.OrderHandler.List)
	orders.GET("/:id", d.OrderHandler.Get)
	orders.POST("/:id/cancel", d.OrderHandler.Cancel)
	orders.POST("/:id/cancel-request", d.OrderHandler.RequestCancellation)

	v1.POST("/reviews", d.ReviewHandler.Create)

	admin := v1.Group("/admin")
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)
}
