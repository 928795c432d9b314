package database

import (
	"fmt"
	"time"

	"marketplace_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// PostgresDSN build gorm postgres dsn
func PostgresDSN(host string, port int, user, password, database string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		host, port, user, password, database,
	)
}

// NewPGConnection create a new gorm postgreSQL connection with retry
// TranslateError 開啟後 unique 衝突會回傳 gorm.ErrDuplicatedKey
func NewPGConnection(d Connection) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	for i := 0; i < max(d.RetryCount, 1); i++ {
		db, err = gorm.Open(postgres.Open(d.ConnectStr), &gorm.Config{
			TranslateError: true,
			Logger:         gorm_logger.Default.LogMode(gorm_logger.Warn),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		if err == nil {
			sqlDB, pingErr := db.DB()
			if pingErr == nil {
				pingErr = sqlDB.Ping()
			}
			if pingErr == nil {
				return db, nil
			}
			err = pingErr
		}
		logger.Log.Warn(
			"Failed to connect to postgreSQL database, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, err
}
