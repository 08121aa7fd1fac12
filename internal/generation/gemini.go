package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	logx "nightingale/pkg/logx"
)

var (
	ErrInvalidConfig   = errors.New("invalid llm config")
	ErrContentBlocked  = errors.New("content blocked by safety filters")
	ErrInvalidResponse = errors.New("invalid llm response")
)

// StoryWriter turns a prompt into a narration script.
type StoryWriter interface {
	WriteStory(ctx context.Context, req StoryRequest) (string, error)
}

// LLMConfig configures the Gemini story writer.
type LLMConfig struct {
	APIKey string
	// Models are tried in order; a transient failure moves to the next one.
	Models     []string
	MaxRetries int
	RetryDelay time.Duration
}

var DefaultModels = []string{"gemini-2.5-flash-lite", "gemini-2.5-flash", "gemini-2.0-flash-lite"}

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiWriter asks Gemini for story scripts.
type GeminiWriter struct {
	gen    contentGenerator
	cfg    LLMConfig
	log    logx.Logger
	models []string
}

func NewGeminiWriter(ctx context.Context, cfg LLMConfig, log logx.Logger) (*GeminiWriter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %v", ErrInvalidConfig, err)
	}
	return newGeminiWriter(client.Models, cfg, log), nil
}

func newGeminiWriter(gen contentGenerator, cfg LLMConfig, log logx.Logger) *GeminiWriter {
	if log.IsZero() {
		log = logx.Nop()
	}
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &GeminiWriter{gen: gen, cfg: cfg, log: log.With(logx.String("comp", "generation.gemini")), models: models}
}

func storyPrompt(req StoryRequest) string {
	var b strings.Builder
	b.WriteString("Write a short narration script for an ambient audio story.\n")
	fmt.Fprintf(&b, "It will be read aloud over about %d seconds, so keep it to roughly %d words.\n", req.Duration, max(req.Duration*2, 20))
	b.WriteString("Return only the narration text, without titles, stage directions or markdown.\n\n")
	if req.OriginalDescription != "" {
		fmt.Fprintf(&b, "Scene: %s\n", req.OriginalDescription)
	}
	fmt.Fprintf(&b, "Story idea: %s\n", req.Prompt)
	return b.String()
}

// WriteStory walks the model list. Each attempt tries every model once;
// safety blocks and empty answers are permanent.
func (g *GeminiWriter) WriteStory(ctx context.Context, req StoryRequest) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: storyPrompt(req)}},
	}}

	b := retry.WithMaxRetries(uint64(g.cfg.MaxRetries), retry.WithJitterPercent(25, retry.NewExponential(g.cfg.RetryDelay)))
	var script string
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var lastErr error
		for _, model := range g.models {
			text, err := g.generate(ctx, model, contents)
			if err == nil {
				script = text
				return nil
			}
			if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) {
				return err
			}
			g.log.Warn("gemini call failed, trying next model", logx.String("model", model), logx.Err(err))
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return retry.RetryableError(lastErr)
	})
	if err != nil {
		return "", fmt.Errorf("story writer: %w", err)
	}
	return script, nil
}

func (g *GeminiWriter) generate(ctx context.Context, model string, contents []*genai.Content) (string, error) {
	resp, err := g.gen.GenerateContent(ctx, model, contents, nil)
	switch {
	case err != nil:
		return "", err
	case resp == nil || len(resp.Candidates) == 0:
		return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", ErrContentBlocked
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content in response", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty script", ErrInvalidResponse)
	}
	g.log.Debug("story script generated", logx.String("model", model), logx.Int("chars", len(text)))
	return text, nil
}
