package recording

import "errors"

// Kind classifies a failure so callers can map it to a response without
// inspecting wrapped collaborator errors.
type Kind string

const (
	KindValidation              Kind = "VALIDATION_ERROR"
	KindStorageWrite            Kind = "STORAGE_WRITE_ERROR"
	KindStorageDelete           Kind = "STORAGE_DELETE_ERROR"
	KindPersistence             Kind = "PERSISTENCE_ERROR"
	KindDownload                Kind = "DOWNLOAD_ERROR"
	KindTranscription           Kind = "TRANSCRIPTION_ERROR"
	KindEmptyTranscription      Kind = "EMPTY_TRANSCRIPTION"
	KindNotFound                Kind = "NOT_FOUND"
	KindNoExistingTranscription Kind = "NO_EXISTING_TRANSCRIPTION"
	KindTranscriptionInProgress Kind = "TRANSCRIPTION_IN_PROGRESS"
)

// Error is a classified failure from a lifecycle operation.
type Error struct {
	Kind Kind   // failure classification
	Op   string // operation that failed (e.g. "create", "transcribe")
	Msg  string // human-readable reason shown to the caller
	Err  error  // underlying collaborator error, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the classification from err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human-readable reason from err, falling back to a
// generic message when err carries no classification.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "something went wrong"
}
