package chat

import (
	"context"
	"errors"
)

// ErrAudioNotFound is returned when an audio handle was never uploaded or has expired.
var ErrAudioNotFound = errors.New("audio file was not uploaded or does not exist anymore")

// Transcript is the result of transcribing an uploaded audio file.
type Transcript struct {
	Text       string
	Confidence float64
}

// Transcriber resolves an uploaded audio handle to its transcript.
// Upload and speech-to-text live outside this service.
type Transcriber interface {
	Transcribe(ctx context.Context, audioFileID string) (Transcript, error)
}
