package pipeline

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when an ingestion for the same external
	// id is already in flight.
	ErrAlreadyRunning = errors.New("pipeline: ingestion already running")

	// ErrVideoNotFound is returned by metadata providers for unknown ids.
	ErrVideoNotFound = errors.New("pipeline: video not found")
)

// Kind classifies why an ingestion failed. Every kind is terminal for the job.
type Kind int

const (
	Unknown Kind = iota
	MetadataNotFound
	MetadataUnavailable
	DownloadFailed
	SegmentationFailed
	TranscriptionFailed
	EmbeddingFailed
	PersistenceFailed
	Canceled
)

var kindNames = [...]string{
	Unknown:             "Unknown",
	MetadataNotFound:    "MetadataNotFound",
	MetadataUnavailable: "MetadataUnavailable",
	DownloadFailed:      "DownloadFailed",
	SegmentationFailed:  "SegmentationFailed",
	TranscriptionFailed: "TranscriptionFailed",
	EmbeddingFailed:     "EmbeddingFailed",
	PersistenceFailed:   "PersistenceFailed",
	Canceled:            "Canceled",
}

var kindMessages = [...]string{
	Unknown:             "Processing failed",
	MetadataNotFound:    "Video details not found",
	MetadataUnavailable: "Could not fetch video details",
	DownloadFailed:      "Failed to download video",
	SegmentationFailed:  "Failed to segment video",
	TranscriptionFailed: "Failed to transcribe segment",
	EmbeddingFailed:     "Failed to embed segment",
	PersistenceFailed:   "Failed to save segment",
	Canceled:            "Processing canceled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the failure returned by Orchestrator.Process.
type Error struct {
	Kind Kind
	// Segment is the 1-based segment number, or 0 for job-level failures.
	Segment int
	Err     error
}

func (e *Error) Error() string {
	if e.Segment > 0 {
		return fmt.Sprintf("pipeline: %s at segment %d: %v", e.Kind, e.Segment, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human-readable text published with the Failed event.
func (e *Error) Message() string {
	msg := kindMessages[Unknown]
	if int(e.Kind) < len(kindMessages) {
		msg = kindMessages[e.Kind]
	}
	if e.Segment > 0 {
		msg = fmt.Sprintf("%s %d", msg, e.Segment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf classifies err. Context cancellation maps to Canceled.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Unknown
}

func asError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindOf(err), Err: err}
}
