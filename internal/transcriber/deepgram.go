package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultDeepgramURL = "https://api.deepgram.com/v1/listen"

// DeepgramTranscriber calls Deepgram's prerecorded listen endpoint with
// the raw audio payload as the request body.
type DeepgramTranscriber struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Deepgram response, trimmed to the fields we read.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramTranscriber constructs a Deepgram client. model defaults to
// "nova-2" when empty.
func NewDeepgramTranscriber(apiKey, model string) (*DeepgramTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Deepgram API key is required")
	}
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramTranscriber{
		baseURL:    defaultDeepgramURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (dt *DeepgramTranscriber) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s?model=%s&smart_format=true", dt.baseURL, dt.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+dt.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := dt.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deepgram status %d: %s", resp.StatusCode, string(body))
	}

	var dr deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("parse deepgram response: %w", err)
	}
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("deepgram response has no alternatives")
	}
	return dr.Results.Channels[0].Alternatives[0].Transcript, nil
}
