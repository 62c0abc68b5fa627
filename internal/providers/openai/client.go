// Package openai adapts the OpenAI API to the pipeline's embedding,
// transcription and summary providers.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const summaryPrompt = "Summarize this video transcript segment in one short sentence."

type Config struct {
	APIKey             string
	BaseURL            string
	EmbeddingModel     string
	Dimensions         int
	TranscriptionModel string
	SummaryModel       string
}

type Client struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = openai.Whisper1
	}
	return &Client{
		client:  openai.NewClientWithConfig(oc),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		log:     log,
	}
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	vec := resp.Data[0].Embedding
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, fmt.Errorf("openai: embedding has %d dimensions, want %d", len(vec), c.cfg.Dimensions)
	}
	return vec, nil
}

// Transcribe sends the audio file to the transcription model.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	c.log.Debug("transcribed audio", "path", audioPath, "chars", len(resp.Text), "duration", time.Since(start))
	return resp.Text, nil
}

// Summarize returns a one-sentence summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if c.cfg.SummaryModel == "" {
		return "", errors.New("openai: no summary model configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.SummaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summaryPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   80,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai: summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty summary response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
