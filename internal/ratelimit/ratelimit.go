// Package ratelimit provides per-caller request rate limiting.
package ratelimit

import (
	"context"
)

// Limiter decides whether a caller identified by key may proceed.
// Backend failures surface as errors; the HTTP layer treats those as
// allowed so a limiter outage cannot take down the API.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
