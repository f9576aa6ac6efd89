// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"
)

// StatusClientClosedRequest is reported when the caller went away mid-request.
const StatusClientClosedRequest = 499

// RespondError writes an unclassified error as an RFC7807 problem. Internal
// details never reach the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		Problem(w, StatusClientClosedRequest, "Canceled", "request canceled")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
