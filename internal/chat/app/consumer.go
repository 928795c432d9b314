package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"marketplace_service/internal/chat/domain"
	"marketplace_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventReader the part of *kafka.Reader the consumer needs
type EventReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer 訂單/商品服務的事件 -> NotificationUseCase
type EventConsumer struct {
	reader  EventReader
	notify  *NotificationUseCase
	backoff time.Duration
}

// NewEventConsumer create EventConsumer
func NewEventConsumer(reader EventReader, notify *NotificationUseCase) *EventConsumer {
	return &EventConsumer{reader: reader, notify: notify, backoff: time.Second}
}

// StartConsumer 執行到 ctx 結束; 無法解析或未知類型的事件記錄後照常 commit
func (c *EventConsumer) StartConsumer(ctx context.Context) {
	logger.Log.Info("producer event consumer start")
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Log.Warn("close event reader", zap.Error(err))
		}
		logger.Log.Info("producer event consumer stop")
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Log.Error("fetch producer event failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Log.Error("commit producer event failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *EventConsumer) handle(ctx context.Context, msg kafka.Message) {
	var ev domain.ProducerEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.Log.Warn("drop producer event, bad json",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}
	if err := c.notify.Dispatch(ctx, ev); err != nil {
		logger.Log.Warn("drop producer event",
			zap.String("type", string(ev.Type)),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}
	logger.Log.Debug("producer event dispatched", zap.String("type", string(ev.Type)), zap.Int64("offset", msg.Offset))
}
