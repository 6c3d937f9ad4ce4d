package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies how a pipeline call failed.
type Kind int

const (
	KindOK Kind = iota
	// KindUnauthenticated: the backend answered 401.
	KindUnauthenticated
	// KindTokenExpired: the stored token was expired; nothing was sent.
	KindTokenExpired
	// KindNetwork: no response was received.
	KindNetwork
	// KindServer: any other non-2xx response, or a 2xx body that could not
	// be decoded.
	KindServer
	// KindOther: the error did not come from the pipeline.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindTokenExpired:
		return "token_expired"
	case KindNetwork:
		return "network_error"
	case KindServer:
		return "server_error"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrTokenExpired is wrapped by every KindTokenExpired error.
var ErrTokenExpired = errors.New("session token expired")

// Error is returned by every pipeline call that does not succeed.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	// Message is the human-readable message supplied by the backend, if any.
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTokenExpired:
		return fmt.Sprintf("%s: %v", e.Op, ErrTokenExpired)
	case KindNetwork:
		return fmt.Sprintf("%s: failed to send request: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (status %d)", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies pipeline errors. It returns KindOK for nil and KindOther
// for anything else, such as local validation errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindOther
}

// IsTokenExpired reports whether err is a locally detected expiry. Callers
// usually return silently: the expiry handler is already reacting.
func IsTokenExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// MessageOf returns the backend-supplied message carried by err, if any.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// backendMessage extracts {"message": ...} or {"error": ...} from a response body.
func backendMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}
