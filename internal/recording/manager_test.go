package recording_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/voicememo/internal/blobstore"
	"github.com/amanullahtanweer/voicememo/internal/recording"
	"github.com/amanullahtanweer/voicememo/internal/store"
)

// fakeBlobStore keeps objects in memory and can be told to fail.
type fakeBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putErr   error
	delErr   error
	fetchErr error
	deletes  []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(ctx context.Context, data []byte, contentType, nameHint string) (blobstore.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return blobstore.Location{}, f.putErr
	}
	handle := fmt.Sprintf("recordings/obj-%d", len(f.objects))
	f.objects[handle] = data
	return blobstore.Location{URL: "https://cdn.test/" + handle, Handle: handle}, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, handle)
	if f.delErr != nil {
		return f.delErr
	}
	if _, ok := f.objects[handle]; !ok {
		return fmt.Errorf("delete %s: %w", handle, blobstore.ErrObjectNotFound)
	}
	delete(f.objects, handle)
	return nil
}

func (f *fakeBlobStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	for handle, data := range f.objects {
		if "https://cdn.test/"+handle == url {
			return data, nil
		}
	}
	return nil, errors.New("no object at " + url)
}

func (f *fakeBlobStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeEngine returns scripted results and counts invocations.
type fakeEngine struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.text, f.err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingStore struct {
	recording.Store
}

func (failingStore) Insert(ctx context.Context, r recording.Recording) (recording.Recording, error) {
	return recording.Recording{}, errors.New("insert refused")
}

func newTestStore(t *testing.T) recording.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewWithClient(client, "voicememo:")
}

func newManager(t *testing.T, s recording.Store, blobs *fakeBlobStore, engine *fakeEngine) *recording.Manager {
	t.Helper()
	return recording.NewManager(recording.ManagerConfig{
		Store:  s,
		Blobs:  blobs,
		Engine: engine,
		Logger: zerolog.Nop(),
	})
}

func TestCreateRecording(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	m := newManager(t, newTestStore(t), blobs, &fakeEngine{})

	rec, err := m.CreateRecording(ctx, "Meeting Notes", []byte("audio-bytes"), "audio/mp3", "recording.mp3")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.NotEmpty(t, rec.AudioURL)
	require.NotEmpty(t, rec.Checksum)
	require.Equal(t, recording.StateNone, rec.State)
	require.Equal(t, int64(len("audio-bytes")), rec.SizeBytes)

	recs, err := m.ListRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestCreateRecordingValidation(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	s := newTestStore(t)
	m := newManager(t, s, blobs, &fakeEngine{})

	cases := []struct {
		name  string
		title string
		audio []byte
	}{
		{"empty title", "", []byte("bytes")},
		{"whitespace title", "   ", []byte("bytes")},
		{"empty audio", "memo", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateRecording(ctx, tc.title, tc.audio, "audio/webm", "a.webm")
			require.Equal(t, recording.KindValidation, recording.KindOf(err))
		})
	}

	// No store mutation and no blob written on validation failures.
	recs, err := m.ListRecordings(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Zero(t, blobs.count())
}

func TestCreateRecordingCompensatesOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	m := newManager(t, failingStore{}, blobs, &fakeEngine{})

	_, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.Equal(t, recording.KindPersistence, recording.KindOf(err))

	// The compensating delete removed the just-written blob.
	require.Zero(t, blobs.count())
	require.Len(t, blobs.deletes, 1)
}

func TestCreateRecordingStorageWriteFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	blobs.putErr = errors.New("provider down")
	s := newTestStore(t)
	m := newManager(t, s, blobs, &fakeEngine{})

	_, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.Equal(t, recording.KindStorageWrite, recording.KindOf(err))

	recs, listErr := m.ListRecordings(ctx)
	require.NoError(t, listErr)
	require.Empty(t, recs)
}

func TestTranscribeSuccessAndIdempotence(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	engine := &fakeEngine{text: "hello world"}
	m := newManager(t, newTestStore(t), blobs, engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	text, err := m.Transcribe(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, 1, engine.callCount())

	got, err := m.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, recording.StateDone, got.State)
	require.Equal(t, "hello world", got.Transcription)

	// Second request returns the stored text without a new engine call.
	text, err = m.Transcribe(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, 1, engine.callCount())
}

func TestTranscribeEmptyResultIsFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()

	cases := []string{"", "   ", "\n\t"}
	for _, result := range cases {
		t.Run(fmt.Sprintf("%q", result), func(t *testing.T) {
			engine := &fakeEngine{text: result}
			m := newManager(t, newTestStore(t), blobs, engine)

			rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
			require.NoError(t, err)

			_, err = m.Transcribe(ctx, rec.ID)
			require.Equal(t, recording.KindEmptyTranscription, recording.KindOf(err))

			got, err := m.GetRecording(ctx, rec.ID)
			require.NoError(t, err)
			require.Empty(t, got.Transcription)
			require.Equal(t, recording.StateFailed, got.State)
		})
	}
}

func TestTranscribeEngineFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	engine := &fakeEngine{err: errors.New("engine exploded")}
	m := newManager(t, newTestStore(t), blobs, engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	_, err = m.Transcribe(ctx, rec.ID)
	require.Equal(t, recording.KindTranscription, recording.KindOf(err))

	// A failure is not terminal: a later request retries from scratch.
	engine.err = nil
	engine.text = "second try"
	text, err := m.Transcribe(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "second try", text)
}

func TestTranscribeDownloadFailure(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	engine := &fakeEngine{text: "never reached"}
	m := newManager(t, newTestStore(t), blobs, engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)
	blobs.fetchErr = errors.New("cdn unreachable")

	_, err = m.Transcribe(ctx, rec.ID)
	require.Equal(t, recording.KindDownload, recording.KindOf(err))
	require.Zero(t, engine.callCount())
}

func TestTranscribeNotFound(t *testing.T) {
	m := newManager(t, newTestStore(t), newFakeBlobStore(), &fakeEngine{})

	_, err := m.Transcribe(context.Background(), "missing")
	require.Equal(t, recording.KindNotFound, recording.KindOf(err))
}

func TestTranscribeConcurrentDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	engine := &fakeEngine{
		text:    "hello",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m := newManager(t, newTestStore(t), blobs, engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Transcribe(ctx, rec.ID)
		done <- err
	}()
	<-engine.started

	// While the first request sits in the engine, a duplicate is rejected
	// and the record reads as pending.
	_, err = m.Transcribe(ctx, rec.ID)
	require.Equal(t, recording.KindTranscriptionInProgress, recording.KindOf(err))

	got, err := m.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, recording.StatePending, got.State)

	close(engine.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, engine.callCount())
}

func TestAppendTranscription(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	engine := &fakeEngine{text: "first part"}
	m := newManager(t, newTestStore(t), blobs, engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)
	_, err = m.Transcribe(ctx, rec.ID)
	require.NoError(t, err)

	engine.text = "second part"
	updated, err := m.AppendTranscription(ctx, rec.ID, []byte("more-bytes"), "audio/webm")
	require.NoError(t, err)
	require.Equal(t, "first part\nsecond part", updated)

	// The stored audio location is untouched by a text append.
	got, err := m.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.AudioURL, got.AudioURL)
	require.Equal(t, "first part\nsecond part", got.Transcription)
}

func TestAppendTranscriptionRequiresExistingText(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, newTestStore(t), newFakeBlobStore(), &fakeEngine{text: "x"})

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	_, err = m.AppendTranscription(ctx, rec.ID, []byte("more"), "audio/webm")
	require.Equal(t, recording.KindNoExistingTranscription, recording.KindOf(err))

	// Precondition failure mutates nothing.
	got, err := m.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.Empty(t, got.Transcription)
	require.Equal(t, recording.StateNone, got.State)
}

func TestAppendTranscriptionWithoutAudioUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{text: "spoken text"}
	m := newManager(t, newTestStore(t), newFakeBlobStore(), engine)

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)
	_, err = m.Transcribe(ctx, rec.ID)
	require.NoError(t, err)
	calls := engine.callCount()

	updated, err := m.AppendTranscription(ctx, rec.ID, nil, "")
	require.NoError(t, err)
	require.Contains(t, updated, "spoken text\n")
	require.Equal(t, calls, engine.callCount())
}

func TestDeleteRecording(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	m := newManager(t, newTestStore(t), blobs, &fakeEngine{})

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	require.NoError(t, m.DeleteRecording(ctx, rec.ID))
	require.Zero(t, blobs.count())

	_, err = m.GetRecording(ctx, rec.ID)
	require.Equal(t, recording.KindNotFound, recording.KindOf(err))
}

func TestDeleteRecordingBlobAlreadyGone(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	m := newManager(t, newTestStore(t), blobs, &fakeEngine{})

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)

	// Simulate the provider losing the object out of band.
	blobs.mu.Lock()
	delete(blobs.objects, rec.StoreHandle)
	blobs.mu.Unlock()

	require.NoError(t, m.DeleteRecording(ctx, rec.ID))
	_, err = m.GetRecording(ctx, rec.ID)
	require.Equal(t, recording.KindNotFound, recording.KindOf(err))
}

func TestDeleteRecordingBlobFailureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	blobs := newFakeBlobStore()
	m := newManager(t, newTestStore(t), blobs, &fakeEngine{})

	rec, err := m.CreateRecording(ctx, "memo", []byte("bytes"), "audio/webm", "a.webm")
	require.NoError(t, err)
	blobs.delErr = errors.New("provider rejected delete")

	err = m.DeleteRecording(ctx, rec.ID)
	require.Equal(t, recording.KindStorageDelete, recording.KindOf(err))

	// Metadata survives a failed blob delete.
	got, err := m.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
}

func TestDeleteRecordingNotFound(t *testing.T) {
	m := newManager(t, newTestStore(t), newFakeBlobStore(), &fakeEngine{})

	err := m.DeleteRecording(context.Background(), "missing")
	require.Equal(t, recording.KindNotFound, recording.KindOf(err))
}
