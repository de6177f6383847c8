// Package sttclient is the speech-to-text vendor collaborator behind
// POST /stt. It transcribes one uploaded audio file per call; there is
// no realtime/session concept here, unlike the voice orchestrator this
// module's host process evolved from.
package sttclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	modelID string
}

func New(baseURL, apiKey, modelID string, timeout time.Duration) *Client {
	if strings.TrimSpace(modelID) == "" {
		modelID = "scribe_v1"
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		modelID: modelID,
	}
}

// Segment is one timestamped span of the transcript.
type Segment struct {
	Text      string  `json:"text"`
	StartSec  float64 `json:"startSec"`
	EndSec    float64 `json:"endSec"`
}

// Transcript is the parsed result of one transcription call.
type Transcript struct {
	Text         string    `json:"text"`
	Segments     []Segment `json:"segments"`
	LanguageCode string    `json:"languageCode,omitempty"`
}

type wireTranscript struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	LanguageCode string `json:"language_code"`
}

// Transcribe uploads audio (named by filename for content-type sniffing on
// the vendor side) and returns the parsed transcript. languageCode is
// forwarded as a hint when non-empty; the vendor auto-detects otherwise.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader, languageCode string) (Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Transcript{}, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.WriteField("model_id", c.modelID); err != nil {
		return Transcript{}, fmt.Errorf("write model_id field: %w", err)
	}
	if strings.TrimSpace(languageCode) != "" {
		if err := mw.WriteField("language_code", languageCode); err != nil {
			return Transcript{}, fmt.Errorf("write language_code field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech-to-text", &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return Transcript{}, fmt.Errorf("rate_limit: stt status %d", res.StatusCode)
	}
	if res.StatusCode >= 500 {
		return Transcript{}, fmt.Errorf("server_error: stt status %d", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Transcript{}, fmt.Errorf("stt http status %d: %s", res.StatusCode, string(respBody))
	}

	var wire wireTranscript
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return Transcript{}, fmt.Errorf("decode response: %w", err)
	}
	out := Transcript{Text: wire.Text, LanguageCode: wire.LanguageCode}
	for _, s := range wire.Segments {
		out.Segments = append(out.Segments, Segment{Text: s.Text, StartSec: s.Start, EndSec: s.End})
	}
	return out, nil
}
