package httpadapter

import (
	"net/http"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrEmptyQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidIntent):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrieval),
		domain.IsKind(err, domain.ErrEmbedding),
		domain.IsKind(err, domain.ErrCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage keeps backend detail out of responses; full errors go to the
// structured log only.
func clientMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case http.StatusBadGateway:
		return "upstream dependency failed"
	default:
		return "internal error"
	}
}
