package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/milkteahub/shop/internal/logging"
	"github.com/milkteahub/shop/internal/models"
	"github.com/milkteahub/shop/internal/order"
)

type ReviewHandler struct {
	DB        *gorm.DB
	Orders    *order.Service
	JWTSecret []byte
}

// Create persists a review and then pokes the lifecycle machine: a review on
// an order that is still pending pushes it straight to shipping.
func (h *ReviewHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "review.create")

	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var req struct {
		OrderID   uint   `json:"order_id"`
		ProductID uint   `json:"product_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return echo.NewHTTPError(http.StatusBadRequest, "rating must be between 1 and 5")
	}

	var o models.Order
	if err := h.DB.Where("id = ? AND user_id = ?", req.OrderID, userID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	review := models.Review{
		UserID:    userID,
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := h.DB.Create(&review).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.Orders.OnReviewCreated(ctx, req.OrderID); err != nil {
		// The review itself is already saved; the jump failing is not fatal.
		l.Error("review status jump failed", "order", req.OrderID, "error", err)
	}

	return c.JSON(http.StatusCreated, review)
}
