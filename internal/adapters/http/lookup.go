package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// FailureKind categorises why a lookup produced no data.
type FailureKind string

const (
	FailureUnconfigured FailureKind = "unconfigured"
	FailureNetwork      FailureKind = "network"
	FailureTimeout      FailureKind = "timeout"
	FailureStatus       FailureKind = "status"
	FailureDecode       FailureKind = "decode"
)

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// LookupError is returned by every lookup client instead of a bare error.
type LookupError struct {
	Kind       FailureKind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *LookupError) Error() string {
	switch e.Kind {
	case FailureStatus:
		return fmt.Sprintf("lookup %s: unexpected status %d", e.Endpoint, e.StatusCode)
	case FailureUnconfigured:
		return fmt.Sprintf("lookup %s: client not configured", e.Endpoint)
	}
	if e.Err != nil {
		return fmt.Sprintf("lookup %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("lookup %s: %s", e.Endpoint, e.Kind)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsFailure reports whether err is a LookupError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var le *LookupError
	return errors.As(err, &le) && le.Kind == kind
}

// newHTTPClient returns the client shared by the lookup adapters.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs one GET and decodes a 2xx JSON body into out.
// endpoint is a short label used in errors and logs.
func getJSON(ctx context.Context, client *http.Client, endpoint string, req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		kind := FailureNetwork
		if isTimeout(err) {
			kind = FailureTimeout
		}
		logger.Warn(ctx, "Lookup request failed",
			zap.String("endpoint", endpoint),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return &LookupError{Kind: kind, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		logger.Warn(ctx, "Lookup returned non-2xx status",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode))
		return &LookupError{Kind: FailureStatus, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		kind := FailureDecode
		if isTimeout(err) {
			kind = FailureTimeout
		}
		logger.Warn(ctx, "Failed to decode lookup response",
			zap.String("endpoint", endpoint),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return &LookupError{Kind: kind, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	logger.Debug(ctx, "Lookup succeeded",
		zap.String("endpoint", endpoint),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FlexString decodes a JSON string, number or boolean into its textual form.
// Upstream APIs are loose about whether prices and counts are quoted.
type FlexString struct {
	Value string
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	f.Value, f.Valid = "", false
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value, f.Valid = s, true
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		f.Value, f.Valid = n.String(), true
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			f.Value = "True"
		} else {
			f.Value = "False"
		}
		f.Valid = true
		return nil
	}

	// Objects and arrays are kept verbatim.
	f.Value, f.Valid = string(data), true
	return nil
}

// Or returns the value, or def when the field was absent or null.
func (f FlexString) Or(def string) string {
	if !f.Valid {
		return def
	}
	return f.Value
}
