package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/subtrack/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a response status. An empty Message
// exposes err.Error() to the client.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the response for the first mapping matching err.
// Unmapped errors are logged and reported as 500 without details.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	ctxlog.FromContext(ctx).Error("unhandled error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
