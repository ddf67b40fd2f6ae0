package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind classifies why a transcription failed.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindUnsupportedFormat  Kind = "UnsupportedFormat"
	KindEmptyArtifact      Kind = "EmptyArtifact"
	KindModelUnavailable   Kind = "ModelUnavailable"
	KindEngineFailure      Kind = "EngineFailure"
	KindEmptyTranscription Kind = "EmptyTranscription"
)

// Error is a classified transcription failure. Path is the audio file the
// failure concerns and may be empty when the failure is not file specific.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("transcribe: %s", e.Kind)
	}
	return fmt.Sprintf("transcribe: %v", e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &transcribe.Error{Kind: transcribe.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, path string, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

// classify returns err unchanged when it already carries a kind, otherwise
// wraps it with the fallback kind.
func classify(err error, fallback Kind, path string) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: fallback, Path: path, Err: err}
}

// KindOf returns the failure kind carried by err. Errors without a kind are
// reported as engine failures.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindEngineFailure
}

// FailureRecord is the structured diagnostic written once per failed run.
type FailureRecord struct {
	Error     string `json:"error"`
	File      string `json:"file"`
	Timestamp string `json:"timestamp"`
	Type      Kind   `json:"type"`
}

// NewFailureRecord describes err for the audio file at path.
func NewFailureRecord(err error, path string, now time.Time) FailureRecord {
	msg := err.Error()
	var te *Error
	if errors.As(err, &te) && te.Err != nil {
		msg = te.Err.Error()
	}
	return FailureRecord{
		Error:     msg,
		File:      path,
		Timestamp: now.Format(time.RFC3339Nano),
		Type:      KindOf(err),
	}
}

// WriteTo serializes the record as a single "failure: {json}" line.
func (r FailureRecord) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("transcribe: encode failure record: %w", err)
	}
	n, err := fmt.Fprintf(w, "failure: %s\n", data)
	return int64(n), err
}
