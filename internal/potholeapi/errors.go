package potholeapi

import (
	"fmt"
	"log/slog"
)

// NetworkError is a transport failure: the remote side could not be reached or the connection broke.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// LogValue implements [slog.LogValuer].
func (e *NetworkError) LogValue() slog.Value {
	return slog.GroupValue(slog.String("op", e.Op), slog.String("cause", e.Err.Error()))
}

// RemoteError is a response with a non-success HTTP status or a body that could not be understood.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: remote error: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: remote error: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// LogValue implements [slog.LogValuer].
func (e *RemoteError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("op", e.Op),
		slog.Int("status", e.StatusCode),
		slog.String("message", e.Message),
	)
}
