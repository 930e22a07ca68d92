package metrics

import (
	"sync"
	"time"
)

// ServiceMetrics tracks process-wide counters for the voice-memo
// service. All methods are safe for concurrent use.
type ServiceMetrics struct {
	mu                    sync.Mutex
	startTime             time.Time
	uploads               int64
	uploadBytes           int64
	transcriptions        int64
	transcriptionFailures int64
	appends               int64
	deletes               int64
}

// Snapshot is a point-in-time copy of the counters, JSON-shaped for the
// stats endpoint.
type Snapshot struct {
	UptimeSeconds         int64 `json:"uptimeSeconds"`
	Uploads               int64 `json:"uploads"`
	UploadBytes           int64 `json:"uploadBytes"`
	Transcriptions        int64 `json:"transcriptions"`
	TranscriptionFailures int64 `json:"transcriptionFailures"`
	Appends               int64 `json:"appends"`
	Deletes               int64 `json:"deletes"`
}

func New() *ServiceMetrics {
	return &ServiceMetrics{startTime: time.Now()}
}

func (m *ServiceMetrics) AddUpload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	m.uploadBytes += bytes
}

func (m *ServiceMetrics) AddTranscription() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcriptions++
}

func (m *ServiceMetrics) AddTranscriptionFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcriptionFailures++
}

func (m *ServiceMetrics) AddAppend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
}

func (m *ServiceMetrics) AddDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
}

func (m *ServiceMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		UptimeSeconds:         int64(time.Since(m.startTime).Seconds()),
		Uploads:               m.uploads,
		UploadBytes:           m.uploadBytes,
		Transcriptions:        m.transcriptions,
		TranscriptionFailures: m.transcriptionFailures,
		Appends:               m.appends,
		Deletes:               m.deletes,
	}
}
