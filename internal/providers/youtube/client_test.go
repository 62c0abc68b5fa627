package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "PT56S", want: 56 * time.Second},
		{in: "PT4M13S", want: 4*time.Minute + 13*time.Second},
		{in: "PT1H", want: time.Hour},
		{in: "P1DT2H3M4S", want: 26*time.Hour + 3*time.Minute + 4*time.Second},
		{in: "PT1.5S", want: 1500 * time.Millisecond},
		{in: "P0D", want: 0},
		{in: "PT", wantErr: true},
		{in: "56", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVideoDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Query().Get("id") {
		case "jNQXAC9IVRw":
			w.Write([]byte(`{"items":[{"id":"jNQXAC9IVRw","snippet":{"title":"Me at the zoo"},"contentDetails":{"duration":"PT19S"}}]}`))
		default:
			w.Write([]byte(`{"items":[]}`))
		}
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	ctx := context.Background()

	d, err := c.VideoDetails(ctx, "jNQXAC9IVRw")
	if err != nil {
		t.Fatalf("VideoDetails() error = %v", err)
	}
	if d.Title != "Me at the zoo" || d.Duration != 19 {
		t.Errorf("VideoDetails() = %+v", d)
	}

	if _, err := c.VideoDetails(ctx, "missing"); !errors.Is(err, pipeline.ErrVideoNotFound) {
		t.Errorf("missing video error = %v, want ErrVideoNotFound", err)
	}

	bad := NewClient("wrong", WithBaseURL(srv.URL))
	if _, err := bad.VideoDetails(ctx, "jNQXAC9IVRw"); !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("forbidden error = %v, want ErrQuotaExhausted", err)
	}
}
