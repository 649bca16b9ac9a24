package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/KushagraAgarwal525/racoon/internal/api/respond"
	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case model.IsValidation(err):
		respond.WriteBadRequest(w, err.Error())
	case model.IsNotFound(err):
		respond.WriteNotFound(w, err.Error())
	case model.IsConflict(err):
		respond.WriteConflict(w, err.Error())
	case errors.Is(err, model.ErrRetriesExhausted):
		respond.WriteInternalError(w, "update could not be applied due to concurrent writes; retry later")
	default:
		log.Error().Stack().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		respond.WriteInternalError(w, "internal error")
	}
}
