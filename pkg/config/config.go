package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string          `mapstructure:"port"`
	PostgreSQL DatabaseConfig  `mapstructure:"pg"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Websocket  WebsocketConfig `mapstructure:"websocket"`
	Auth       AuthConfig      `mapstructure:"auth"`
}

// RedisConfig definition redis setting
// Addr 有值時直連, 否則走 sentinel (MasterName + Sentinels)
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	MasterName  string        `mapstructure:"master_name"`
	Sentinels   []string      `mapstructure:"sentinels"`
	RedisDB     int           `mapstructure:"redis_db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// KafkaConfig definition producer event topic
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// WebsocketConfig definition connection manager limits
type WebsocketConfig struct {
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	FanoutConcurrency int           `mapstructure:"fanout_concurrency"`
}

// AuthConfig definition jwt check on /ws
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// WithDefaults 補上未設定的 websocket / redis 參數
func (c Chat) WithDefaults() Chat {
	if c.Port == "" {
		c.Port = "8000"
	}
	if c.Websocket.SendTimeout <= 0 {
		c.Websocket.SendTimeout = 5 * time.Second
	}
	if c.Websocket.LockTimeout <= 0 {
		c.Websocket.LockTimeout = 2 * time.Second
	}
	if c.Websocket.PingPeriod <= 0 {
		c.Websocket.PingPeriod = 30 * time.Second
	}
	if c.Websocket.PongWait <= c.Websocket.PingPeriod {
		c.Websocket.PongWait = 2 * c.Websocket.PingPeriod
	}
	if c.Websocket.FanoutConcurrency <= 0 {
		c.Websocket.FanoutConcurrency = 32
	}
	if c.Redis.PresenceTTL <= 0 {
		c.Redis.PresenceTTL = 24 * time.Hour
	}
	if c.Redis.MasterName == "" {
		c.Redis.MasterName = "mymaster"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "chat_service"
	}
	return c
}
