package ollama

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// classifyError maps transport faults onto the domain error taxonomy
// before they cross the provider port: ErrTemporary for anything worth a
// retry, ErrRejected for definitive per-request refusals.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return domain.WrapError(domain.ErrRejected, operation, err)
		}
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
