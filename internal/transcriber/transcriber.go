package transcriber

import "context"

// Transcriber is the common interface for prerecorded transcription
// providers. Input is the complete audio payload; there is no streaming.
type Transcriber interface {
	// Transcribe converts audio bytes to text. The returned text may be
	// empty; callers decide what an empty result means.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}
