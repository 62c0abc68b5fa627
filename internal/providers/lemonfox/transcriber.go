// Package lemonfox transcribes audio with the Lemonfox Whisper API.
package lemonfox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const DefaultURL = "https://api.lemonfox.ai/v1/audio/transcriptions"

type Transcriber struct {
	apiKey     string
	url        string
	language   string
	httpClient *http.Client
}

func NewTranscriber(apiKey string) *Transcriber {
	return &Transcriber{
		apiKey:     apiKey,
		url:        DefaultURL,
		language:   "english",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Transcribe uploads the audio file, requests WebVTT and returns the cue
// text joined into plain text.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	vtt, err := t.transcribeVTT(ctx, audioPath)
	if err != nil {
		return "", err
	}
	cues, err := ParseVTT(vtt)
	if err != nil {
		return "", fmt.Errorf("lemonfox: %w", err)
	}
	return PlainText(cues), nil
}

func (t *Transcriber) transcribeVTT(ctx context.Context, filePath string) (string, error) {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("lemonfox: read audio: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("lemonfox: create form file: %w", err)
	}
	if _, err := part.Write(fileData); err != nil {
		return "", fmt.Errorf("lemonfox: copy audio: %w", err)
	}
	writer.WriteField("language", t.language)
	writer.WriteField("response_format", "vtt")
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return "", fmt.Errorf("lemonfox: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lemonfox: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("lemonfox: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lemonfox: unexpected status code %d: %s", resp.StatusCode, respBody)
	}
	return string(respBody), nil
}
