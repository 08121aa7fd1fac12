package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	logx "nightingale/pkg/logx"
)

type scriptedGenerator struct {
	mu     sync.Mutex
	calls  []string
	answer func(model string) (*genai.GenerateContentResponse, error)
}

func (g *scriptedGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, model)
	g.mu.Unlock()
	return g.answer(model)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
	}}}
}

func TestGeminiWriterFallsBackAcrossModels(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{answer: func(model string) (*genai.GenerateContentResponse, error) {
		if model == "primary" {
			return nil, errors.New("quota exceeded")
		}
		return textResponse("  The rain kept falling.  "), nil
	}}
	w := newGeminiWriter(gen, LLMConfig{Models: []string{"primary", "backup"}, RetryDelay: time.Millisecond}, logx.Nop())

	script, err := w.WriteStory(context.Background(), StoryRequest{Prompt: "rain", Duration: 30})
	require.NoError(t, err)
	assert.Equal(t, "The rain kept falling.", script)
	assert.Equal(t, []string{"primary", "backup"}, gen.calls)
}

func TestGeminiWriterRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{answer: func(string) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("unavailable")
	}}
	w := newGeminiWriter(gen, LLMConfig{Models: []string{"m"}, MaxRetries: 2, RetryDelay: time.Millisecond}, logx.Nop())

	_, err := w.WriteStory(context.Background(), StoryRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Len(t, gen.calls, 3)
}

func TestGeminiWriterPermanentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{
			name: "safety",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			want: ErrContentBlocked,
		},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ErrInvalidResponse},
		{name: "blank text", resp: textResponse("   "), want: ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{answer: func(string) (*genai.GenerateContentResponse, error) { return tt.resp, nil }}
			w := newGeminiWriter(gen, LLMConfig{Models: []string{"a", "b"}, MaxRetries: 3, RetryDelay: time.Millisecond}, logx.Nop())

			_, err := w.WriteStory(context.Background(), StoryRequest{Prompt: "x"})
			require.ErrorIs(t, err, tt.want)
			assert.Len(t, gen.calls, 1)
		})
	}
}

func TestNewGeminiWriterRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGeminiWriter(context.Background(), LLMConfig{}, logx.Nop())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStoryPrompt(t *testing.T) {
	t.Parallel()

	p := storyPrompt(StoryRequest{Prompt: "a lighthouse keeper", OriginalDescription: "stormy coast", Duration: 60})
	assert.Contains(t, p, "Story idea: a lighthouse keeper")
	assert.Contains(t, p, "Scene: stormy coast")
	assert.Contains(t, p, "about 60 seconds")
}
