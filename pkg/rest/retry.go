package rest

import (
	"context"
	"time"

	"github.com/cloud-rtc/trtc-asr-go/pkg/errorsx"
)

// RetryPolicy replays requests that failed before the server answered.
// Responses the server did produce, including error envelopes and non-200
// statuses, are never retried: the outcome is known and recognition requests
// are not free to replay.
//
// The zero policy performs a single attempt. Clients opt in with WithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

// NewRetryPolicy builds a policy, substituting defaults for non-positive
// values: two retries, 200ms apart.
func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn, retrying transport failures up to MaxRetries times and waiting
// Backoff between attempts. It returns the last error once attempts are
// exhausted, fn returns a non-transport error, or ctx ends during backoff.
func (r RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn()
		if err == nil || !errorsx.IsKind(err, errorsx.KindTransport) {
			return err
		}
		if i == r.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(r.Backoff):
		}
	}
	return err
}
