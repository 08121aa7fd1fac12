package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"

	logx "nightingale/pkg/logx"
)

const maxErrorBody = 4 << 10

// Backends holds the base URLs of the generation services.
type Backends struct {
	AudioURL string
	StoryURL string
	ImageURL string
	TTSURL   string

	Timeout time.Duration

	// ImageRetries is how many times a failed image request is retried.
	ImageRetries int
	RetryBackoff time.Duration
}

const (
	DefaultAudioURL     = "http://localhost:8001"
	DefaultStoryURL     = "http://localhost:8000"
	DefaultImageURL     = "http://localhost:8000"
	DefaultTTSURL       = "http://localhost:8000"
	DefaultTimeout      = 5 * time.Minute
	DefaultImageRetries = 3
	DefaultRetryBackoff = time.Second
)

func (b Backends) withDefaults() Backends {
	if strings.TrimSpace(b.AudioURL) == "" {
		b.AudioURL = DefaultAudioURL
	}
	if strings.TrimSpace(b.StoryURL) == "" {
		b.StoryURL = DefaultStoryURL
	}
	if strings.TrimSpace(b.ImageURL) == "" {
		b.ImageURL = DefaultImageURL
	}
	if strings.TrimSpace(b.TTSURL) == "" {
		b.TTSURL = DefaultTTSURL
	}
	if b.Timeout <= 0 {
		b.Timeout = DefaultTimeout
	}
	if b.ImageRetries < 0 {
		b.ImageRetries = 0
	}
	if b.RetryBackoff <= 0 {
		b.RetryBackoff = DefaultRetryBackoff
	}
	return b
}

// APIError is a non-200 answer from a back-end.
type APIError struct {
	Kind   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s generation API failed: %s", e.Kind, e.Body)
}

var ErrMissingURL = errors.New("no URL returned from API")

// MissingURLError is a 200 answer without the expected URL.
type MissingURLError struct {
	Kind string
}

func (e *MissingURLError) Error() string {
	return fmt.Sprintf("No %s URL returned from API", strings.ToLower(e.Kind))
}

func (e *MissingURLError) Is(target error) bool { return target == ErrMissingURL }

// Client talks JSON to the generation back-ends.
type Client struct {
	hc  *http.Client
	b   Backends
	log logx.Logger
}

func NewClient(b Backends, log logx.Logger) *Client {
	b = b.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		hc:  &http.Client{Timeout: b.Timeout},
		b:   b,
		log: log.With(logx.String("comp", "generation.client")),
	}
}

// AudioRequest is the body of generate-audio.
type AudioRequest struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Mode        string `json:"mode"`
}

type audioResponse struct {
	AudioURL string `json:"audio_url"`
}

// GenerateAudio renders a soundscape and returns its URL.
func (c *Client) GenerateAudio(ctx context.Context, req AudioRequest) (string, error) {
	return c.audio(ctx, "Audio", req)
}

// GenerateMusic uses the audio endpoint; only error wording differs.
func (c *Client) GenerateMusic(ctx context.Context, req AudioRequest) (string, error) {
	return c.audio(ctx, "Music", req)
}

func (c *Client) audio(ctx context.Context, kind string, req AudioRequest) (string, error) {
	var out audioResponse
	if err := c.postJSON(ctx, kind, c.b.AudioURL+"/api/generate-audio", req, &out); err != nil {
		return "", err
	}
	if out.AudioURL == "" {
		return "", &MissingURLError{Kind: kind}
	}
	return out.AudioURL, nil
}

// StoryRequest is the body of create-story.
type StoryRequest struct {
	Prompt              string `json:"prompt"`
	OriginalDescription string `json:"original_description"`
	Duration            int    `json:"duration"`
}

type StoryResult struct {
	AudioURL        string `json:"audio_url"`
	NarrativeScript string `json:"narrative_script"`
}

func (c *Client) CreateStory(ctx context.Context, req StoryRequest) (StoryResult, error) {
	var out StoryResult
	if err := c.postJSON(ctx, "Story", c.b.StoryURL+"/api/create-story", req, &out); err != nil {
		return StoryResult{}, err
	}
	return out, nil
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
}

// GenerateImage renders a background image. Server errors and transport
// failures are retried with exponential backoff.
func (c *Client) GenerateImage(ctx context.Context, description string) (string, error) {
	b := retry.NewExponential(c.b.RetryBackoff)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(uint64(c.b.ImageRetries), b)

	var url string
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var out imageResponse
		err := c.postJSON(ctx, "Image", c.b.ImageURL+"/api/generate-image", map[string]string{"description": description}, &out)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status < 500 {
				return err
			}
			c.log.Debug("image request failed", logx.Int("attempt", attempt), logx.Err(err))
			return retry.RetryableError(err)
		}
		if out.ImageURL == "" {
			return &MissingURLError{Kind: "Image"}
		}
		url = out.ImageURL
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// SynthesizeSpeech reads text aloud and returns the audio URL.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice string) (string, error) {
	var out audioResponse
	if err := c.postJSON(ctx, "TTS", c.b.TTSURL+"/api/tts", ttsRequest{Text: text, Voice: voice}, &out); err != nil {
		return "", err
	}
	if out.AudioURL == "" {
		return "", &MissingURLError{Kind: "TTS"}
	}
	return out.AudioURL, nil
}

func (c *Client) postJSON(ctx context.Context, kind, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", strings.ToLower(kind), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s generation request: %w", kind, err)
	}
	defer resp.Body.Close()

	c.log.Debug("backend call",
		logx.String("kind", kind),
		logx.String("url", url),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Kind: kind, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", strings.ToLower(kind), err)
	}
	return nil
}
