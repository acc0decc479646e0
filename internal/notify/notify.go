package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/milkteahub/shop/internal/models"
)

// Notifier is the fire-and-forget delivery channel for order events. It is
// injected into the components that need it; delivery failures are logged and
// never surface to the caller.
type Notifier interface {
	OrderCreated(ctx context.Context, userID uint, order *models.Order)
	OrderConfirmed(ctx context.Context, userID uint, order *models.Order)
	Reward(ctx context.Context, userID uint, points int64, orderNumber string)
}

const orderTopic = "order_events"

type Kafka struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewKafka(address string, log *slog.Logger) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(address),
			Topic:                  orderTopic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		log: log,
	}
}

func (k *Kafka) Close() error { return k.writer.Close() }

func (k *Kafka) publish(ctx context.Context, key string, event map[string]any) {
	data, err := json.Marshal(event)
	if err != nil {
		k.log.Error("notify: marshal event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		k.log.Error("notify: kafka publish", "error", err, "type", event["type"])
	}
}

func (k *Kafka) OrderCreated(ctx context.Context, userID uint, order *models.Order) {
	k.publish(ctx, fmt.Sprint(userID), map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.ID,
		"number":  order.Number,
		"total":   order.Total,
	})
}

func (k *Kafka) OrderConfirmed(ctx context.Context, userID uint, order *models.Order) {
	k.publish(ctx, fmt.Sprint(userID), map[string]any{
		"type":    "order_confirmed",
		"userID":  userID,
		"orderID": order.ID,
		"number":  order.Number,
	})
}

func (k *Kafka) Reward(ctx context.Context, userID uint, points int64, orderNumber string) {
	k.publish(ctx, fmt.Sprint(userID), map[string]any{
		"type":   "reward_earned",
		"userID": userID,
		"points": points,
		"number": orderNumber,
	})
}

// Nop satisfies Notifier for tests and for running without a broker.
type Nop struct{}

func (Nop) OrderCreated(context.Context, uint, *models.Order)   {}
func (Nop) OrderConfirmed(context.Context, uint, *models.Order) {}
func (Nop) Reward(context.Context, uint, int64, string)         {}
