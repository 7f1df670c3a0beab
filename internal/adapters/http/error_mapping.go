package httpadapter

import (
	"net/http"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict), domain.IsKind(err, domain.ErrSigning):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrRender):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrConversion):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
