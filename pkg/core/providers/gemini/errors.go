package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vango-go/vai-wellness/pkg/core"
)

// APIError is the error body returned by the Gemini API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %d %s: %s", e.Code, e.Status, e.Message)
}

// geminiError represents an error response from Gemini API.
type geminiError struct {
	Error APIError `json:"error"`
}

// parseError maps an error response onto a core.Error.
func parseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var geminiErr geminiError
	if err := json.Unmarshal(body, &geminiErr); err != nil || geminiErr.Error.Message == "" {
		// Can't parse error, keep the raw body
		geminiErr.Error = APIError{Code: resp.StatusCode, Message: string(body), Status: http.StatusText(resp.StatusCode)}
	}
	apiErr := geminiErr.Error

	kind := core.KindUnknown
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		kind = core.KindRateLimited
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout || apiErr.Status == "UNAVAILABLE":
		kind = core.KindNetwork
	}

	e := &core.Error{
		Kind:    kind,
		Op:      op,
		Message: apiErr.Message,
		Code:    apiErr.Status,
		Err:     &apiErr,
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
		e.RetryAfter = &secs
	}
	return e
}

// mapTransportError classifies a failure to reach the API.
func mapTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return core.NewNetworkError(op, err)
	}
	return core.NewError(core.KindUnknown, op, err)
}
