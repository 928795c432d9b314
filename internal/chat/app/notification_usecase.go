package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace_service/internal/chat/domain"
)

// ErrUnknownProducerEvent producer event type is not order_updated / product_updated / notification
var ErrUnknownProducerEvent = errors.New("unknown producer event")

// NotificationUseCase 訂單/商品服務寫入後的事件通知
type NotificationUseCase struct {
	notifier Notifier
	now      func() time.Time
}

// NewNotificationUseCase init notification use case
func NewNotificationUseCase(notifier Notifier) *NotificationUseCase {
	return &NotificationUseCase{notifier: notifier, now: time.Now}
}

func (uc *NotificationUseCase) stamp(at *time.Time) string {
	if at == nil || at.IsZero() {
		return domain.FormatTime(uc.now())
	}
	return domain.FormatTime(*at)
}

// NotifyOrderUpdate unicast order_updated to each listed user
func (uc *NotificationUseCase) NotifyOrderUpdate(ctx context.Context, order json.RawMessage, updatedAt *time.Time, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	uc.notifier.UnicastMany(ctx, domain.OrderUpdatedEvent{
		Type:      domain.EventOrderUpdated,
		Order:     order,
		Timestamp: uc.stamp(updatedAt),
	}, userIDs...)
}

// NotifyProductUpdate unicast product_updated to interested users, broadcast when none listed
func (uc *NotificationUseCase) NotifyProductUpdate(ctx context.Context, product json.RawMessage, updatedAt *time.Time, interested []string) {
	ev := domain.ProductUpdatedEvent{
		Type:      domain.EventProductUpdated,
		Product:   product,
		Timestamp: uc.stamp(updatedAt),
	}
	if len(interested) == 0 {
		uc.notifier.BroadcastAll(ctx, ev)
		return
	}
	uc.notifier.UnicastMany(ctx, ev, interested...)
}

// SendNotification unicast a notification to one user
func (uc *NotificationUseCase) SendNotification(ctx context.Context, userID, title, message string, data json.RawMessage) {
	uc.notifier.Unicast(ctx, domain.NotificationEvent{
		Type:      domain.EventNotification,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: domain.FormatTime(uc.now()),
	}, userID)
}

// Dispatch route one producer event
func (uc *NotificationUseCase) Dispatch(ctx context.Context, ev domain.ProducerEvent) error {
	switch ev.Type {
	case domain.EventOrderUpdated:
		uc.NotifyOrderUpdate(ctx, ev.Order, ev.UpdatedAt, ev.UserIDs)
	case domain.EventProductUpdated:
		uc.NotifyProductUpdate(ctx, ev.Product, ev.UpdatedAt, ev.UserIDs)
	case domain.EventNotification:
		if ev.UserID == "" {
			return fmt.Errorf("%w: notification without user_id", ErrUnknownProducerEvent)
		}
		uc.SendNotification(ctx, ev.UserID, ev.Title, ev.Message, ev.Data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProducerEvent, ev.Type)
	}
	return nil
}
