package database

import (
	"context"
	"fmt"
	"time"

	"marketplace_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaReaderWithRetry 建立 consumer group reader, 先以 Dial 確認 broker 可連線
func NewKafkaReaderWithRetry(k KafkaConnection) (*kafka.Reader, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	var err error
	for attempt := 1; attempt <= max(k.RetryCount, 1); attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		cancel()
		if err == nil {
			conn.Close()
			logger.Log.Info("kafka broker reachable", zap.Int("attempt", attempt), zap.String("topic", k.Topic))
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  k.Brokers,
				Topic:    k.Topic,
				GroupID:  k.GroupID,
				MinBytes: 1,
				MaxBytes: 10e6,
			}), nil
		}

		logger.Log.Warn("kafka dial failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("retry_count", k.RetryCount),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("無法建立 Kafka Reader，經過 %d 次嘗試: %w", k.RetryCount, err)
}
