package generation

import (
	"context"
	"errors"

	"nightingale/internal/task/engine"
	logx "nightingale/pkg/logx"
)

const (
	defaultDuration = 20
	defaultMode     = "default"
	defaultVoice    = "default"
	narratorVoice   = "narrator"
)

// Handlers binds the generation back-ends to engine task types.
type Handlers struct {
	client *Client
	writer StoryWriter
	log    logx.Logger
}

// NewHandlers builds the handler set. writer may be nil, in which case
// stories go through the create-story back-end.
func NewHandlers(client *Client, writer StoryWriter, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{client: client, writer: writer, log: log.With(logx.String("comp", "generation"))}
}

// Register installs a handler for every task type.
func (h *Handlers) Register(reg *engine.Registry) {
	reg.Register(engine.TypeAudio, h.Audio)
	reg.Register(engine.TypeMusic, h.Music)
	reg.Register(engine.TypeStory, h.Story)
	reg.Register(engine.TypeImage, h.Image)
	reg.Register(engine.TypeTTS, h.TTS)
}

func (h *Handlers) Audio(ctx context.Context, job *engine.Job) (any, error) {
	job.SetProgress(20)
	req := AudioRequest{
		Description: job.Payload.String("description", ""),
		Duration:    job.Payload.Int("duration", defaultDuration),
		Mode:        job.Payload.String("mode", defaultMode),
	}
	job.SetProgress(40)

	url, err := h.client.GenerateAudio(ctx, req)
	if err != nil {
		return nil, err
	}
	job.SetProgress(80)
	return map[string]any{
		"audio_url":   url,
		"description": req.Description,
		"duration":    req.Duration,
		"mode":        req.Mode,
	}, nil
}

func (h *Handlers) Music(ctx context.Context, job *engine.Job) (any, error) {
	job.SetProgress(30)
	req := AudioRequest{
		Description: job.Payload.String("description", ""),
		Duration:    job.Payload.Int("duration", defaultDuration),
		Mode:        job.Payload.String("mode", defaultMode),
	}
	job.SetProgress(60)

	url, err := h.client.GenerateMusic(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"music_url":   url,
		"description": req.Description,
		"duration":    req.Duration,
		"mode":        req.Mode,
	}, nil
}

// Story produces narration, a background image and background music. Only
// the narration is required; the other two degrade to null.
func (h *Handlers) Story(ctx context.Context, job *engine.Job) (any, error) {
	job.SetProgress(20)
	req := StoryRequest{
		Prompt:              job.Payload.String("prompt", ""),
		OriginalDescription: job.Payload.String("original_description", ""),
		Duration:            job.Payload.Int("duration", defaultDuration),
	}
	job.SetProgress(40)

	story, err := h.narrate(ctx, req)
	if err != nil {
		return nil, err
	}
	job.SetProgress(60)

	var imageURL any
	if url, err := h.client.GenerateImage(ctx, req.OriginalDescription); err != nil {
		h.log.Warn("story image failed, continuing without image", logx.String("task_id", job.ID), logx.Err(err))
	} else {
		imageURL = url
	}
	job.SetProgress(80)

	var musicURL any
	music := AudioRequest{
		Description: "Background music for story: " + req.OriginalDescription,
		Duration:    req.Duration,
		Mode:        "music",
	}
	if url, err := h.client.GenerateMusic(ctx, music); err != nil {
		h.log.Warn("story music failed, continuing without music", logx.String("task_id", job.ID), logx.Err(err))
	} else {
		musicURL = url
	}

	return map[string]any{
		"audio_url":            nullable(story.AudioURL),
		"background_image_url": imageURL,
		"music_url":            musicURL,
		"narrative_script":     nullable(story.NarrativeScript),
		"description":          req.OriginalDescription,
	}, nil
}

// narrate uses the story writer plus TTS when one is configured, and the
// create-story back-end otherwise.
func (h *Handlers) narrate(ctx context.Context, req StoryRequest) (StoryResult, error) {
	if h.writer == nil {
		return h.client.CreateStory(ctx, req)
	}
	script, err := h.writer.WriteStory(ctx, req)
	if err != nil {
		return StoryResult{}, err
	}
	url, err := h.client.SynthesizeSpeech(ctx, script, narratorVoice)
	if err != nil {
		return StoryResult{}, err
	}
	return StoryResult{AudioURL: url, NarrativeScript: script}, nil
}

func (h *Handlers) Image(ctx context.Context, job *engine.Job) (any, error) {
	job.SetProgress(35)
	description := job.Payload.String("description", "")
	job.SetProgress(70)

	url, err := h.client.GenerateImage(ctx, description)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"image_url":   url,
		"description": description,
	}, nil
}

func (h *Handlers) TTS(ctx context.Context, job *engine.Job) (any, error) {
	job.SetProgress(30)
	text := job.Payload.String("text", "")
	voice := job.Payload.String("voice", defaultVoice)
	if text == "" {
		return nil, errors.New("text is required")
	}
	job.SetProgress(60)

	url, err := h.client.SynthesizeSpeech(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tts_url": url,
		"text":    text,
		"voice":   voice,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
