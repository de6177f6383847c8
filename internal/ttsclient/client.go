// Package ttsclient is the text-to-speech vendor collaborator. It always
// requests raw PCM16 mono output so the caller can hand the bytes
// straight to internal/audio without a decode step; no Non-goal here
// involves streaming playback, so one REST round trip per utterance is
// enough.
package ttsclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reflective-resonance/turnengine/internal/audio"
	"github.com/reflective-resonance/turnengine/internal/reliability"
)

type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	format     string
	sampleRate int
}

func New(baseURL, apiKey, outputFormat string, sampleRate int, timeout time.Duration) *Client {
	if strings.TrimSpace(outputFormat) == "" {
		outputFormat = "pcm_16000"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		http:       &http.Client{Timeout: timeout},
		format:     outputFormat,
		sampleRate: sampleRate,
	}
}

// Synthesize returns the mono PCM16LE response decoded to float64 samples,
// with its sample rate (c.sampleRate unless the response's X-Sample-Rate
// header overrides it), for the given voice profile and text.
func (c *Client) Synthesize(ctx context.Context, voiceProfile, text string) ([]float64, int, error) {
	u, err := url.Parse(c.baseURL + "/text-to-speech/" + url.PathEscape(voiceProfile))
	if err != nil {
		return nil, 0, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	q.Set("output_format", c.format)
	u.RawQuery = q.Encode()

	body := strings.NewReader(fmt.Sprintf(`{"text":%q}`, text))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, 0, fmt.Errorf("rate_limit: tts status %d", res.StatusCode)
	}
	if res.StatusCode >= 500 {
		return nil, 0, fmt.Errorf("server_error: tts status %d", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, 0, fmt.Errorf("tts_error: status %d: %s", res.StatusCode, string(respBody))
	}

	pcm, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	sampleRate := c.sampleRate
	if sr := res.Header.Get("X-Sample-Rate"); sr != "" {
		if v, err := strconv.Atoi(sr); err == nil {
			sampleRate = v
		}
	}
	return audio.PCM16LEToFloat64(pcm), sampleRate, nil
}

// ClassifyErr maps every TTS failure to the tts_error kind, so TTS
// failures are not mistaken for LLM network, timeout, or server errors
// upstream.
func ClassifyErr(err error) reliability.ErrorKind {
	if err == nil {
		return ""
	}
	return reliability.KindTTSError
}
