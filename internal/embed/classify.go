package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// classifyStatus maps an HTTP status from an embedding backend to the
// error taxonomy.
func classifyStatus(provider string, status int, header http.Header, body string) error {
	msg := fmt.Sprintf("%s returned status %d: %s", provider, status, truncate(body, 200))
	switch {
	case status == http.StatusTooManyRequests:
		return mcberrors.RateLimited(msg, parseRetryAfter(header.Get("Retry-After"), time.Now()), nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return mcberrors.Unauthorized(msg, nil)
	case status == http.StatusRequestTimeout || status >= 500:
		return mcberrors.Transport(msg, nil)
	case status == http.StatusNotFound:
		return mcberrors.New(mcberrors.ErrCodeNotFound, msg, nil)
	default:
		return mcberrors.InvalidArgument(msg)
	}
}

// classifyTransport maps a client-side error (dial, timeout, cancel).
func classifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return mcberrors.FromContext(err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return mcberrors.New(mcberrors.ErrCodeTimeout, provider+" request timed out", err)
	}
	return mcberrors.Transport(provider+" request failed", err)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
