package models

import "time"

// Segment is one fixed-length slice of a video with its transcript and
// embedding. Segments are immutable once inserted.
type Segment struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"videoId"`
	StartTime  float64   `json:"startTime"`
	EndTime    float64   `json:"endTime"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SegmentResult is a segment joined with its parent video. Distance is set
// only on freshly ranked results.
type SegmentResult struct {
	Segment
	Video    VideoRef `json:"video"`
	Distance *float64 `json:"distance,omitempty"`
}

type VideoRef struct {
	ID         string `json:"id"`
	ExternalID string `json:"youtubeId"`
	Title      string `json:"title"`
}

// CacheEntry maps a normalized query to an ordered list of segment ids.
type CacheEntry struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	SegmentIDs []string  `json:"segmentIds"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Live reports whether the entry is still valid at now.
func (e CacheEntry) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}
