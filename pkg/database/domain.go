package database

import (
	"time"
)

// Connection definition sql setting
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// RedisConnection definition redis setting
// Addr 有值時直連 (本地/測試), 否則使用 sentinel
type RedisConnection struct {
	Addr       string
	MasterName string
	Sentinels  []string
	DB         int
}

// KafkaConnection definition kafka
type KafkaConnection struct {
	Brokers []string
	Topic   string
	GroupID string

	RetryCount    int
	RetryInterval time.Duration
}
