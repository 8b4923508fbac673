package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a detection run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRequest is returned when an identical detection was
	// submitted within the duplicate window.
	ErrDuplicateRequest = errors.New("duplicate request")
)

// AreaTooLargeError rejects a bounding box needing more tiles than allowed.
type AreaTooLargeError struct {
	Tiles int
	Max   int
	Zoom  int
}

func (e *AreaTooLargeError) Error() string {
	return fmt.Sprintf("area too large: %d tiles at zoom %d exceeds the limit of %d; zoom out or select a smaller area", e.Tiles, e.Zoom, e.Max)
}

// PredictionError reports a failed call to the prediction service.
type PredictionError struct {
	StatusCode int
	Message    string
}

func (e *PredictionError) Error() string {
	if e.StatusCode == 0 {
		return "prediction failed: " + e.Message
	}
	return fmt.Sprintf("prediction failed with status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the call may succeed if repeated.
func (e *PredictionError) Retryable() bool {
	switch e.StatusCode {
	case 0, 502, 503, 504:
		return true
	}
	return false
}
