package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const genericFailure = "something went wrong, please try again"

// RespondError maps domain errors onto the failure envelope. Unknown errors
// are logged and answered with a generic message.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	message, known := shared.Message(err)
	switch {
	case errors.Is(err, shared.ErrValidation):
		var de *shared.DomainError
		if errors.As(err, &de) && len(de.Fields) > 0 {
			JSON(w, http.StatusBadRequest, Envelope{Success: false, Message: de.Error(), Errors: de.Fields})
			return
		}
		Fail(w, http.StatusBadRequest, messageOr(message, known, err))
	case errors.Is(err, shared.ErrBusinessRule):
		Fail(w, http.StatusBadRequest, messageOr(message, known, err))
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, messageOr(message, known, err))
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, messageOr(message, known, err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Fail(w, http.StatusConflict, err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Fail(w, http.StatusInternalServerError, genericFailure)
	}
}

func messageOr(message string, known bool, err error) string {
	if known {
		return message
	}
	return err.Error()
}
