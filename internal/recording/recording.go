package recording

import "time"

// TranscriptionState is the derived transcription status of a recording.
type TranscriptionState string

const (
	StateNone    TranscriptionState = "none"
	StatePending TranscriptionState = "pending"
	StateDone    TranscriptionState = "done"
	StateFailed  TranscriptionState = "failed"
)

// Recording is one uploaded audio item and its transcription.
//
// AudioURL and StoreHandle are set exactly once, after the blob write
// succeeds. Transcription is append-only: new segments are concatenated,
// never replaced. LastError holds the kind of the most recent failed
// transcription attempt and is cleared on success.
type Recording struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	AudioURL      string    `json:"audioUrl"`
	StoreHandle   string    `json:"-"`
	Transcription string    `json:"transcription,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
	SizeBytes     int64     `json:"sizeBytes"`
	ContentType   string    `json:"contentType"`
	CreatedAt     time.Time `json:"createdAt"`

	// State is derived, not stored. The store fills it from the persisted
	// fields; the manager overlays StatePending for in-flight ids.
	State TranscriptionState `json:"transcriptionState"`
}

// DeriveState reconstructs the transcription state from the persisted
// transcript text and failure marker.
func (r *Recording) DeriveState() TranscriptionState {
	switch {
	case r.Transcription != "":
		return StateDone
	case r.LastError != "":
		return StateFailed
	default:
		return StateNone
	}
}
