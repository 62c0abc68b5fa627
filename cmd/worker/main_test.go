package main

import "testing"

func TestVideoID(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{payload: "jNQXAC9IVRw", want: "jNQXAC9IVRw"},
		{payload: "  jNQXAC9IVRw\n", want: "jNQXAC9IVRw"},
		{payload: `{"youtubeId":"jNQXAC9IVRw"}`, want: "jNQXAC9IVRw"},
		{payload: `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=x"}`, want: "dQw4w9WgXcQ"},
		{payload: `{"url":"https://www.youtube.com/watch?v=abc&list=x"}`, want: ""},
		{payload: "../../etc/passwd", want: ""},
		{payload: `{"youtubeId":"jNQXAC9IVR;"}`, want: ""},
		{payload: "jNQXAC9IVRwx", want: ""},
		{payload: `{"youtubeId":`, want: ""},
		{payload: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			if got := videoID(tt.payload); got != tt.want {
				t.Errorf("videoID(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}
