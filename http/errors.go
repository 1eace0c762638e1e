package http

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Service.Ready when a service cannot accept work.
var ErrNotReady = errors.New("service not ready")

// ErrRateLimited is a not-ready condition caused by request rate limiting.
var ErrRateLimited = fmt.Errorf("rate limited: %w", ErrNotReady)
