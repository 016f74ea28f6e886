package ai

import (
	"errors"

	"docpipe/pkg/models"
)

// The sentinels are defined in pkg/models so provider subpackages can return
// them without importing this package; these names keep call sites short.
var (
	ErrRateLimited     = models.ErrRateLimited
	ErrUnavailable     = models.ErrUnavailable
	ErrTimeout         = models.ErrTimeout
	ErrAuth            = models.ErrAuth
	ErrInvalidResponse = models.ErrInvalidResponse
)

// Transient reports whether the error is worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}
