package generation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightingale/internal/eventbus"
	"nightingale/internal/task/engine"
	logx "nightingale/pkg/logx"
)

type stubWriter struct {
	script string
	err    error
}

func (s stubWriter) WriteStory(context.Context, StoryRequest) (string, error) { return s.script, s.err }

func job(payload engine.Payload) *engine.Job {
	return &engine.Job{ID: "t1", Payload: payload}
}

func TestAudioHandlerDefaults(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	h := NewHandlers(f.client(), nil, logx.Nop())

	res, err := h.Audio(context.Background(), job(engine.Payload{"description": "forest at dawn"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"audio_url":   "/static/audio/a.wav",
		"description": "forest at dawn",
		"duration":    20,
		"mode":        "default",
	}, res)
}

func TestMusicHandler(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	h := NewHandlers(f.client(), nil, logx.Nop())

	res, err := h.Music(context.Background(), job(engine.Payload{"description": "lofi", "duration": float64(45), "mode": "music"}))
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "/static/audio/a.wav", m["music_url"])
	assert.Equal(t, 45, m["duration"])
	assert.Equal(t, AudioRequest{Description: "lofi", Duration: 45, Mode: "music"}, f.lastAudio.Load())
}

func TestStoryHandlerToleratesMusicFailure(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	f.audioStatus = http.StatusBadGateway
	h := NewHandlers(f.client(), nil, logx.Nop())

	res, err := h.Story(context.Background(), job(engine.Payload{"prompt": "a fox", "original_description": "snowy woods"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"audio_url":            "/static/story.wav",
		"background_image_url": "/static/img.png",
		"music_url":            nil,
		"narrative_script":     "Once upon a time",
		"description":          "snowy woods",
	}, res)

	music := f.lastAudio.Load().(AudioRequest)
	assert.Equal(t, "Background music for story: snowy woods", music.Description)
	assert.Equal(t, "music", music.Mode)
}

func TestStoryHandlerWithWriter(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	h := NewHandlers(f.client(), stubWriter{script: "The fox slept."}, logx.Nop())

	res, err := h.Story(context.Background(), job(engine.Payload{"prompt": "a fox"}))
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Equal(t, "/static/tts.wav", m["audio_url"])
	assert.Equal(t, "The fox slept.", m["narrative_script"])
	assert.Equal(t, ttsRequest{Text: "The fox slept.", Voice: "narrator"}, f.lastTTS.Load())
}

func TestStoryHandlerWriterFailure(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	h := NewHandlers(f.client(), stubWriter{err: ErrContentBlocked}, logx.Nop())

	_, err := h.Story(context.Background(), job(engine.Payload{"prompt": "x"}))
	require.ErrorIs(t, err, ErrContentBlocked)
}

func TestImageAndTTSHandlers(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	h := NewHandlers(f.client(), nil, logx.Nop())

	res, err := h.Image(context.Background(), job(engine.Payload{"description": "canyon"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"image_url": "/static/img.png", "description": "canyon"}, res)

	res, err = h.TTS(context.Background(), job(engine.Payload{"text": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tts_url": "/static/tts.wav", "text": "hi", "voice": "default"}, res)

	_, err = h.TTS(context.Background(), job(engine.Payload{}))
	require.EqualError(t, err, "text is required")
}

// End to end through the engine: progress milestones and the failure message
// surface on the task snapshot.
func TestHandlersThroughEngine(t *testing.T) {
	t.Parallel()

	f := newFakeBackend(t)
	f.audioStatus = http.StatusInternalServerError

	svc := engine.New(engine.Config{PollInterval: 10 * time.Millisecond}, logx.Nop(), eventbus.New())
	NewHandlers(f.client(), nil, logx.Nop()).Register(svc.Registry())
	assert.Equal(t, engine.Types(), sortedTypes(svc.Registry().Types()))

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	bad, err := svc.Submit(context.Background(), engine.SubmitRequest{Type: engine.TypeAudio, Payload: engine.Payload{"description": "x"}})
	require.NoError(t, err)
	good, err := svc.Submit(context.Background(), engine.SubmitRequest{Type: engine.TypeImage, Payload: engine.Payload{"description": "y"}})
	require.NoError(t, err)

	var snap engine.Snapshot
	require.Eventually(t, func() bool {
		snap, err = svc.Status(context.Background(), bad.TaskID, "")
		return err == nil && snap.Done
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.StatusFailed, snap.Status)
	assert.Equal(t, "Audio generation API failed: model unavailable", snap.Error)
	assert.Equal(t, 40, snap.Progress)

	require.Eventually(t, func() bool {
		snap, err = svc.Status(context.Background(), good.TaskID, "")
		return err == nil && snap.Done
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
}

func sortedTypes(got []engine.Type) []engine.Type {
	order := map[engine.Type]int{}
	for i, t := range engine.Types() {
		order[t] = i
	}
	out := make([]engine.Type, len(got))
	for _, t := range got {
		out[order[t]] = t
	}
	return out
}
