package converter

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/infrastructure/resilience"
)

// classifyGotenberg retries network faults and the statuses a busy
// conversion service answers with; a 4xx means the document itself was refused.
func classifyGotenberg(err error) resilience.Verdict {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return resilience.Ignore
	case errors.Is(err, context.DeadlineExceeded), resilience.IsCircuitOpen(err):
		return resilience.Transient
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.Transient
		}
		if statusErr.StatusCode >= http.StatusInternalServerError {
			return resilience.Permanent
		}
		return resilience.Ignore
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient
	}
	return resilience.Permanent
}

func conversionError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyGotenberg(err).Retry {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
