package errutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// Handle logs the error with full goerr context and forwards it to Sentry
// when a hub is configured. It returns the error unchanged so callers can
// keep propagating it.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.CaptureException(err)
	}

	return err
}

// HandleHTTP logs the error and writes a plain status response. The error
// message is not exposed to the client.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, code int) {
	_ = Handle(ctx, err, "http handler error")
	http.Error(w, http.StatusText(code), code)
}
