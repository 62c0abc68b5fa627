// Package youtube fetches video metadata from the YouTube Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
)

const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrQuotaExhausted is returned when the API answers 403.
var ErrQuotaExhausted = errors.New("youtube: API quota exhausted")

type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// videosResponse is the subset of videos.list we read.
type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// VideoDetails returns the title and duration of videoID, or
// pipeline.ErrVideoNotFound when the API has no such video.
func (c *Client) VideoDetails(ctx context.Context, videoID string) (*pipeline.VideoDetails, error) {
	if c.apiKey == "" {
		return nil, errors.New("youtube: API key required")
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"part": {"snippet,contentDetails"},
		"id":   {videoID},
		"key":  {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: videos.list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrQuotaExhausted
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("youtube: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube: unexpected status %d: %s", resp.StatusCode, body)
	}

	var vr videosResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("youtube: decode response: %w", err)
	}
	if len(vr.Items) == 0 {
		return nil, fmt.Errorf("youtube: %s: %w", videoID, pipeline.ErrVideoNotFound)
	}

	item := vr.Items[0]
	d, err := ParseDuration(item.ContentDetails.Duration)
	if err != nil {
		return nil, fmt.Errorf("youtube: %s: %w", videoID, err)
	}
	return &pipeline.VideoDetails{Title: item.Snippet.Title, Duration: d.Seconds()}, nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses the ISO 8601 durations YouTube reports, e.g. PT56S
// or P1DT2H3M4S.
func ParseDuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
	}

	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, err
		}
		total += time.Duration(n) * unit
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, err
		}
		total += time.Duration(secs * float64(time.Second))
	}
	return total, nil
}
