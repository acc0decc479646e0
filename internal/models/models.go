package models

import (
	"time"
)

type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"unique;not null"          json:"username"`
	Role     string `gorm:"not null;default:user"    json:"role"`
	Phone    string `json:"phone"`
	Points   int64  `gorm:"not null;default:0;check:points>=0" json:"points"`
}

type Product struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string `gorm:"not null"                  json:"name"`
	Description string `json:"description"`
	Price       int64  `gorm:"not null"                  json:"price"`
	SalePrice   int64  `gorm:"not null;default:0"        json:"sale_price"`
	Stock       int64  `gorm:"not null;default:0;check:stock>=0" json:"stock"`
	Sold        int64  `gorm:"not null;default:0"        json:"sold"`
}

type CartItem struct {
	ID        uint   `gorm:"primaryKey"                  json:"id"`
	UserID    uint   `gorm:"index;not null"              json:"user_id"`
	ProductID uint   `gorm:"not null"                    json:"product_id"`
	Quantity  int64  `gorm:"default:1;check:quantity>0"  json:"quantity"`
	Size      string `gorm:"default:M"                   json:"size"`
	Ice       string `json:"ice"`
	Sugar     string `json:"sugar"`
	Notes     string `json:"notes"`
}

type Order struct {
	ID            uint   `gorm:"primaryKey"      json:"id"`
	UserID        uint   `gorm:"index;not null"  json:"user_id"`
	Number        string `gorm:"unique;not null" json:"number"`
	Status        string `gorm:"index;not null"  json:"status"`
	PaymentMethod string `gorm:"not null"        json:"payment_method"`

	Subtotal        int64  `gorm:"not null" json:"subtotal"`
	ShippingFee     int64  `gorm:"not null" json:"shipping_fee"`
	ShippingMethod  string `gorm:"not null" json:"shipping_method"`
	VoucherCode     string `json:"voucher_code,omitempty"`
	VoucherDiscount int64  `gorm:"not null;default:0" json:"voucher_discount"`
	PointsUsed      int64  `gorm:"not null;default:0" json:"points_used"`
	PointsEarned    int64  `gorm:"not null;default:0" json:"points_earned"`
	Total           int64  `gorm:"not null" json:"total"`

	Address string `gorm:"not null" json:"address"`
	Phone   string `gorm:"not null" json:"phone"`
	Notes   string `json:"notes"`

	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ShippingAt  *time.Time `json:"shipping_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelReason        string     `json:"cancel_reason,omitempty"`
	CancelRequestedAt   *time.Time `json:"cancel_requested_at,omitempty"`
	CancelRequestReason string     `json:"cancel_request_reason,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

type OrderItem struct {
	ID          uint   `gorm:"primaryKey"                  json:"id"`
	OrderID     uint   `gorm:"index;not null"              json:"order_id"`
	ProductID   uint   `gorm:"not null"                    json:"product_id"`
	ProductName string `gorm:"not null"                    json:"product_name"`
	Quantity    int64  `gorm:"default:1;check:quantity>0"  json:"quantity"`
	UnitPrice   int64  `gorm:"not null"                    json:"unit_price"`
	Size        string `json:"size"`
	Ice         string `json:"ice"`
	Sugar       string `json:"sugar"`
	Notes       string `json:"notes"`
}

type Voucher struct {
	ID                uint      `gorm:"primaryKey"         json:"id"`
	Code              string    `gorm:"unique;not null"    json:"code"`
	DiscountType      string    `gorm:"not null"           json:"discount_type"`
	DiscountValue     int64     `gorm:"not null"           json:"discount_value"`
	MinOrderAmount    int64     `gorm:"not null;default:0" json:"min_order_amount"`
	MaxDiscountAmount int64     `gorm:"not null;default:0" json:"max_discount_amount"`
	StartsAt          time.Time `gorm:"not null"           json:"starts_at"`
	EndsAt            time.Time `gorm:"not null"           json:"ends_at"`
	UsageLimit        int64     `gorm:"not null;default:0" json:"usage_limit"`
	UsedCount         int64     `gorm:"not null;default:0" json:"used_count"`
}

type LoyaltyTransaction struct {
	ID          uint      `gorm:"primaryKey"     json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Type        string    `gorm:"not null"       json:"type"`
	Amount      int64     `gorm:"not null"       json:"amount"`
	OrderID     *uint     `gorm:"index"          json:"order_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Review struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	ProductID uint      `gorm:"not null"       json:"product_id"`
	Rating    int       `gorm:"not null;check:rating>=1 AND rating<=5" json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
