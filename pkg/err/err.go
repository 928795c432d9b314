package errprocess

import (
	"errors"
	"fmt"

	"marketplace_service/pkg/logger"

	"go.uber.org/zap"
)

// ErrInvalidRequest request body / query validation failed
var ErrInvalidRequest = errors.New("invalid request")

// Set log and build an error wrapping base, base 為 nil 時使用 ErrInvalidRequest
func Set(base error, errMsg string) error {
	if base == nil {
		base = ErrInvalidRequest
	}
	logger.Log.Warn(errMsg, zap.Error(base))
	return fmt.Errorf("%w: %s", base, errMsg)
}
