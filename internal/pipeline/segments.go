package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

const minTranscriptLength = 10

// segmentBounds returns [start, end) in seconds for segment i. A non-positive
// duration means the total length is unknown and every segment is nominal.
func segmentBounds(i int, nominal, duration float64) (float64, float64) {
	start := float64(i) * nominal
	end := float64(i+1) * nominal
	if duration > 0 && end > duration {
		end = duration
	}
	return start, end
}

// segmentCount is ceil(duration/nominal), capped at the number of chunks the
// segmenter actually produced.
func segmentCount(chunks int, nominal, duration float64) int {
	if duration <= 0 {
		return chunks
	}
	n := int(math.Ceil(duration / nominal))
	if n > chunks {
		return chunks
	}
	return n
}

// processSegments runs each chunk through audio extraction, transcription,
// optional summary and embedding, then commits it. It stops at the first
// failure; chunks that were never reached are deleted.
func (o *Orchestrator) processSegments(ctx context.Context, j *job, video *models.Video, duration float64, chunks []string) error {
	nominal := o.segmentDuration.Seconds()
	total := segmentCount(len(chunks), nominal, duration)

	// Chunks past the reported duration carry no content.
	removeFiles(j.log, chunks[total:])

	next := 0
	defer func() { removeFiles(j.log, chunks[next:total]) }()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: Canceled, Segment: i + 1, Err: err}
		}

		start, end := segmentBounds(i, nominal, duration)
		next = i + 1
		seg, err := o.processSegment(ctx, j, chunks[i], i+1)
		if err != nil {
			return err
		}

		seg.VideoID = video.ID
		seg.StartTime = start
		seg.EndTime = end
		if err := o.Store.InsertSegment(ctx, seg); err != nil {
			return &Error{Kind: stageKind(ctx, PersistenceFailed), Segment: i + 1, Err: err}
		}

		done := i + 1
		j.emit(ctx, progress.Event{
			Stage:   progress.Transcribing,
			Message: fmt.Sprintf("Processed segment %d/%d", done, total),
			Percent: progress.Percent(float64(done) / float64(total) * 100),
			Segment: done,
			Total:   total,
		})
	}
	return nil
}

// processSegment produces the transcript, summary and embedding for one
// chunk. The chunk and its audio file are deleted before it returns.
func (o *Orchestrator) processSegment(ctx context.Context, j *job, chunkPath string, n int) (seg *models.Segment, err error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Segment", trace.WithAttributes(attribute.Int("segment", n)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer removeFile(j.log, chunkPath)

	audioPath, err := o.Segmenter.ExtractAudio(ctx, chunkPath)
	if err != nil {
		return nil, &Error{Kind: stageKind(ctx, TranscriptionFailed), Segment: n, Err: fmt.Errorf("extract audio: %w", err)}
	}
	defer removeFile(j.log, audioPath)

	transcript, err := o.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, &Error{Kind: stageKind(ctx, TranscriptionFailed), Segment: n, Err: err}
	}
	transcript = strings.TrimSpace(transcript)
	if len(transcript) < minTranscriptLength {
		j.log.Warn("short transcript", "segment", n, "length", len(transcript))
	}

	var summary string
	if o.Summarizer != nil && transcript != "" {
		summary, err = o.Summarizer.Summarize(ctx, transcript)
		if err != nil {
			j.log.Warn("summary failed", "segment", n, "err", err)
			summary = ""
		}
	}

	embedding, err := o.Embedder.Embed(ctx, transcript)
	if err != nil {
		return nil, &Error{Kind: stageKind(ctx, EmbeddingFailed), Segment: n, Err: err}
	}

	return &models.Segment{
		Transcript: transcript,
		Summary:    summary,
		Embedding:  embedding,
	}, nil
}
