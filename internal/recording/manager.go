package recording

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"

	"github.com/amanullahtanweer/voicememo/internal/blobstore"
	"github.com/amanullahtanweer/voicememo/internal/metrics"
	"github.com/amanullahtanweer/voicememo/internal/notify"
	"github.com/amanullahtanweer/voicememo/internal/transcriber"
)

// appendPlaceholder is concatenated when an append request carries no new
// audio clip.
const appendPlaceholder = "Append new transcription text here..."

// Publisher receives lifecycle events for connected clients.
type Publisher interface {
	Publish(ev notify.Event)
}

// Manager orchestrates creation, transcription, and deletion of
// recordings across the blob store, the transcription engine, and the
// metadata store.
//
// Transcription requests for a single id are serialized: while one is in
// flight, further requests for that id are rejected. Requests for
// different ids proceed independently.
type Manager struct {
	store   Store
	blobs   blobstore.BlobStore
	engine  transcriber.Transcriber
	events  Publisher
	metrics *metrics.ServiceMetrics
	logger  zerolog.Logger

	// callTimeout bounds each collaborator call issued on behalf of one
	// operation.
	callTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// ManagerConfig wires the manager's collaborators. Events may be nil.
type ManagerConfig struct {
	Store       Store
	Blobs       blobstore.BlobStore
	Engine      transcriber.Transcriber
	Events      Publisher
	Metrics     *metrics.ServiceMetrics
	Logger      zerolog.Logger
	CallTimeout time.Duration
}

func NewManager(cfg ManagerConfig) *Manager {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Manager{
		store:       cfg.Store,
		blobs:       cfg.Blobs,
		engine:      cfg.Engine,
		events:      cfg.Events,
		metrics:     m,
		logger:      cfg.Logger,
		callTimeout: timeout,
		inflight:    make(map[string]struct{}),
	}
}

// CreateRecording stores the audio blob, then persists metadata. Nothing
// is observable unless both steps succeed; a failed metadata insert
// triggers a best-effort compensating blob delete.
func (m *Manager) CreateRecording(ctx context.Context, title string, audio []byte, contentType, filename string) (Recording, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Recording{}, E(KindValidation, "create", "Title is required", nil)
	}
	if len(audio) == 0 {
		return Recording{}, E(KindValidation, "create", "No file uploaded", nil)
	}
	if contentType == "" {
		contentType = "audio/webm"
	}

	sum := blake3.Sum256(audio)

	putCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	loc, err := m.blobs.Put(putCtx, audio, contentType, filename)
	if err != nil {
		return Recording{}, E(KindStorageWrite, "create", "Error uploading recording", err)
	}

	rec := Recording{
		Title:       title,
		AudioURL:    loc.URL,
		StoreHandle: loc.Handle,
		Checksum:    hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(audio)),
		ContentType: contentType,
	}
	stored, err := m.store.Insert(ctx, rec)
	if err != nil {
		// Compensate: the blob must not outlive a failed insert.
		delCtx, cancelDel := context.WithTimeout(context.Background(), m.callTimeout)
		defer cancelDel()
		if delErr := m.blobs.Delete(delCtx, loc.Handle); delErr != nil && !errors.Is(delErr, blobstore.ErrObjectNotFound) {
			m.logger.Warn().Err(delErr).Str("handle", loc.Handle).
				Msg("compensating blob delete failed, object may be orphaned")
		}
		return Recording{}, E(KindPersistence, "create", "Error uploading recording", err)
	}

	m.metrics.AddUpload(stored.SizeBytes)
	m.publish(notify.Event{Type: "created", RecordingID: stored.ID})
	m.logger.Info().Str("recording_id", stored.ID).Int64("bytes", stored.SizeBytes).
		Str("content_type", stored.ContentType).Msg("recording created")
	return stored, nil
}

// ListRecordings returns all recordings, newest first, with pending
// transcription state overlaid for in-flight ids.
func (m *Manager) ListRecordings(ctx context.Context) ([]Recording, error) {
	recs, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, E(KindPersistence, "list", "Error fetching recordings", err)
	}
	for i := range recs {
		recs[i].State = m.stateFor(&recs[i])
	}
	return recs, nil
}

// GetRecording returns a single recording by id.
func (m *Manager) GetRecording(ctx context.Context, id string) (Recording, error) {
	rec, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Recording{}, E(KindNotFound, "get", "Recording not found", err)
		}
		return Recording{}, E(KindPersistence, "get", "Error fetching recordings", err)
	}
	rec.State = m.stateFor(&rec)
	return rec, nil
}

// Transcribe runs the transcription state machine for id. A recording
// that already has text returns it without calling the engine. Empty or
// whitespace-only engine output is a failure, never a silent success.
func (m *Manager) Transcribe(ctx context.Context, id string) (string, error) {
	release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	rec, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", E(KindNotFound, "transcribe", "Recording not found", err)
		}
		return "", E(KindPersistence, "transcribe", "Error fetching recordings", err)
	}

	// Idempotent re-request: completed transcriptions are served from the
	// store without a second engine call.
	if rec.Transcription != "" {
		return rec.Transcription, nil
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, m.callTimeout)
	defer cancelFetch()
	audio, err := m.blobs.Fetch(fetchCtx, rec.AudioURL)
	if err != nil {
		m.recordFailure(id, KindDownload)
		return "", E(KindDownload, "transcribe", "Error transcribing audio", err)
	}

	engCtx, cancelEng := context.WithTimeout(ctx, m.callTimeout)
	defer cancelEng()
	text, err := m.engine.Transcribe(engCtx, audio, rec.ContentType)
	if err != nil {
		m.recordFailure(id, KindTranscription)
		return "", E(KindTranscription, "transcribe", "Error transcribing audio", err)
	}
	if strings.TrimSpace(text) == "" {
		m.recordFailure(id, KindEmptyTranscription)
		return "", E(KindEmptyTranscription, "transcribe", "Transcription result is empty", nil)
	}

	noErr := ""
	if _, err := m.store.Update(ctx, id, Patch{Transcription: &text, LastError: &noErr}); err != nil {
		return "", E(KindPersistence, "transcribe", "Error transcribing audio", err)
	}

	m.metrics.AddTranscription()
	m.publish(notify.Event{Type: "transcribed", RecordingID: id})
	m.logger.Info().Str("recording_id", id).Int("chars", len(text)).Msg("transcription complete")
	return text, nil
}

// AppendTranscription transcribes newAudio (when supplied) and
// concatenates the text onto the recording's existing transcript with a
// newline. The stored audio is never modified.
func (m *Manager) AppendTranscription(ctx context.Context, id string, newAudio []byte, contentType string) (string, error) {
	release, err := m.acquire(id)
	if err != nil {
		return "", err
	}
	defer release()

	rec, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", E(KindNotFound, "append", "Recording not found", err)
		}
		return "", E(KindPersistence, "append", "Error fetching recordings", err)
	}
	if rec.Transcription == "" {
		return "", E(KindNoExistingTranscription, "append", "No transcription exists to append to", nil)
	}

	segment := appendPlaceholder
	if len(newAudio) > 0 {
		if contentType == "" {
			contentType = rec.ContentType
		}
		engCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
		segment, err = m.engine.Transcribe(engCtx, newAudio, contentType)
		if err != nil {
			return "", E(KindTranscription, "append", "Error transcribing uploaded audio", err)
		}
		if strings.TrimSpace(segment) == "" {
			return "", E(KindEmptyTranscription, "append", "Transcription result is empty", nil)
		}
	}

	updated := rec.Transcription + "\n" + segment
	if _, err := m.store.Update(ctx, id, Patch{Transcription: &updated}); err != nil {
		return "", E(KindPersistence, "append", "Error appending recording to transcription", err)
	}

	m.metrics.AddAppend()
	m.publish(notify.Event{Type: "transcribed", RecordingID: id})
	return updated, nil
}

// DeleteRecording removes the blob first; metadata is only removed after
// the blob delete succeeds or the provider reports the object already
// gone.
func (m *Manager) DeleteRecording(ctx context.Context, id string) error {
	rec, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return E(KindNotFound, "delete", "Recording not found", err)
		}
		return E(KindPersistence, "delete", "Error deleting recording", err)
	}

	delCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	if err := m.blobs.Delete(delCtx, rec.StoreHandle); err != nil {
		if !errors.Is(err, blobstore.ErrObjectNotFound) {
			return E(KindStorageDelete, "delete", "Error deleting recording", err)
		}
		// Already gone at the provider: proceed to metadata removal.
		m.logger.Warn().Str("recording_id", id).Str("handle", rec.StoreHandle).
			Msg("blob already absent at provider")
	}

	if err := m.store.DeleteByID(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return E(KindPersistence, "delete", "Error deleting recording", err)
	}

	m.metrics.AddDelete()
	m.publish(notify.Event{Type: "deleted", RecordingID: id})
	m.logger.Info().Str("recording_id", id).Msg("recording deleted")
	return nil
}

// acquire marks id as having a transcription in flight. The second
// concurrent request for the same id is rejected, not queued.
func (m *Manager) acquire(id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return nil, E(KindTranscriptionInProgress, "transcribe", "Transcription already in progress", nil)
	}
	m.inflight[id] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inflight, id)
		m.mu.Unlock()
	}, nil
}

func (m *Manager) stateFor(rec *Recording) TranscriptionState {
	m.mu.Lock()
	_, busy := m.inflight[rec.ID]
	m.mu.Unlock()
	if busy {
		return StatePending
	}
	return rec.DeriveState()
}

// recordFailure persists the failure marker so the failed state survives
// restarts. Best effort: the caller already has a classified error.
func (m *Manager) recordFailure(id string, kind Kind) {
	m.metrics.AddTranscriptionFailure()
	m.publish(notify.Event{Type: "transcription_failed", RecordingID: id, Detail: string(kind)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	marker := string(kind)
	if _, err := m.store.Update(ctx, id, Patch{LastError: &marker}); err != nil {
		m.logger.Warn().Err(err).Str("recording_id", id).Msg("persisting failure marker failed")
	}
}

func (m *Manager) publish(ev notify.Event) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}
