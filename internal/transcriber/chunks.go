package transcriber

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uttertype/uttertype/internal/audio"
)

// TranscribeChunks transcribes the chunks of one recording concurrently and
// joins the texts in chunk order. The first failure cancels the rest.
func TranscribeChunks(ctx context.Context, b Backend, chunks [][]byte, format audio.Format, language string) (Result, error) {
	if len(chunks) == 1 {
		return b.Transcribe(ctx, Request{PCM: chunks[0], Format: format, Language: language})
	}

	start := time.Now()
	results := make([]Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := b.Transcribe(gctx, Request{PCM: chunk, Format: format, Language: language})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	texts := make([]string, 0, len(results))
	merged := Result{Provider: b.Name(), Latency: time.Since(start)}
	for _, r := range results {
		merged.Model = r.Model
		merged.Attempts += r.Attempts
		texts = append(texts, r.Text)
	}
	merged.Text = Concat(texts)
	return merged, nil
}

// Concat joins partial transcriptions with single spaces, skipping blanks.
func Concat(parts []string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
