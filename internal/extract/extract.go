package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/esgcompare/internal/metric"
)

var (
	// ErrServiceUnavailable covers network failures, timeouts and 5xx answers.
	ErrServiceUnavailable = errors.New("extraction service unavailable")
	// ErrQuotaExceeded is a rate-limit answer from the service.
	ErrQuotaExceeded = errors.New("extraction quota exceeded")
	// ErrMalformedResponse means the answer held no usable JSON. Not retried.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// Client extracts raw metric records from document text.
type Client interface {
	Extract(ctx context.Context, text string, schema metric.Schema) ([]metric.RawRecord, error)
	Model() string
}

// RetryableError indicates a transient failure that can be retried. It
// unwraps to ErrServiceUnavailable or ErrQuotaExceeded.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Kind       error
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, truncate(e.Message, 200))
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, truncate(e.Message, 200))
}

func (e *RetryableError) Unwrap() error { return e.Kind }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryAfter returns the delay the service asked for, or zero.
func RetryAfter(err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

func unavailable(err error) error {
	return &RetryableError{Message: err.Error(), Kind: ErrServiceUnavailable}
}

// statusError classifies a non-200 HTTP answer.
func statusError(service string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Kind:       ErrQuotaExceeded,
		}
	case resp.StatusCode >= 500:
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(body), Kind: ErrServiceUnavailable}
	}
	return fmt.Errorf("%w: %s api status %d: %s", ErrServiceUnavailable, service, resp.StatusCode, truncate(string(body), 200))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
