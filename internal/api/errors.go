package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockdesk/internal/comparison"
	"stockdesk/internal/desk"
	"stockdesk/internal/favorites"
	"stockdesk/internal/fetcher"
)

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// statusFor maps a desk error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrSymbolNotFound), errors.Is(err, favorites.ErrNotFavorite):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, desk.ErrEmptySymbol), errors.Is(err, favorites.ErrEmptySymbol),
		errors.Is(err, comparison.ErrIdenticalSymbols):
		return http.StatusBadRequest
	case errors.Is(err, favorites.ErrDuplicateFavorite):
		return http.StatusConflict
	}

	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		switch fe.Type {
		case fetcher.ErrorTypeClient:
			return http.StatusBadRequest
		case fetcher.ErrorTypeTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}

	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		resp.Type = string(fe.Type)
	}
	c.AbortWithStatusJSON(statusFor(err), resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
