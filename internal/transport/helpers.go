package transport

import (
	"context"
	"errors"
	"io"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrJobNotFound):
		return 404
	case errors.Is(err, model.ErrJobInProgress):
		return 409
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrEmptyPayload),
		errors.Is(err, model.ErrMalformedPayload),
		errors.Is(err, model.ErrMissingField),
		errors.Is(err, model.ErrInvalidKey),
		errors.Is(err, model.ErrUnknownTask):
		return 400
	default:
		return 500
	}
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Handler failed to close request body")
	}
}
