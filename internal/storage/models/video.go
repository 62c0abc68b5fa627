package models

import (
	"regexp"
	"strings"
	"time"
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidExternalID reports whether id has the shape of a YouTube video id.
func ValidExternalID(id string) bool {
	return externalIDPattern.MatchString(id)
}

// Video is a source video known to the system. ExternalID is the YouTube
// video id and is unique.
type Video struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"youtubeId"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VideoRequest is the body accepted by the ingestion endpoint.
type VideoRequest struct {
	YouTubeID string `json:"youtubeId"`
	URL       string `json:"url,omitempty"`
}

// ExternalID returns the YouTube id named by the request, falling back to
// the v= parameter of URL.
func (r VideoRequest) ExternalID() string {
	if id := strings.TrimSpace(r.YouTubeID); id != "" {
		return id
	}
	return ExtractSlugFromURL(r.URL)
}

func ExtractSlugFromURL(url string) string {
	vIndex := strings.Index(url, "v=")
	if vIndex == -1 {
		return ""
	}

	slug := url[vIndex+2:]
	if ampIndex := strings.Index(slug, "&"); ampIndex != -1 {
		slug = slug[:ampIndex]
	}
	return slug
}
