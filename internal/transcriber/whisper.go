package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperTranscriber calls an OpenAI-compatible audio/transcriptions
// endpoint with a multipart payload. Works against api.openai.com and
// self-hosted Whisper servers exposing the same surface.
type WhisperTranscriber struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type whisperResponse struct {
	Text string `json:"text"`
}

// NewWhisperTranscriber constructs a Whisper client. endpoint defaults to
// the OpenAI transcription URL, model to "whisper-1".
func NewWhisperTranscriber(endpoint, apiKey, model string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Whisper API key is required")
	}
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", wt.model); err != nil {
		return "", fmt.Errorf("build whisper payload: %w", err)
	}
	fw, err := mw.CreateFormFile("file", "audio"+extensionFor(contentType))
	if err != nil {
		return "", fmt.Errorf("build whisper payload: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("build whisper payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build whisper payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wt.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build whisper request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+wt.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := wt.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper status %d: %s", resp.StatusCode, string(b))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("parse whisper response: %w", err)
	}
	return wr.Text, nil
}

func extensionFor(contentType string) string {
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if strings.HasPrefix(contentType, "audio/") {
		return "." + strings.TrimPrefix(contentType, "audio/")
	}
	return ".webm"
}
