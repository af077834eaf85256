package dialect

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/vocalfuse/backend/internal/cache"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/segment"
)

const cacheTTL = 7 * 24 * time.Hour

// refinableLangs are source languages whose transcripts benefit from the
// dialect correction pass before translation.
var refinableLangs = map[string]bool{
	"tn":    true,
	"aeb":   true,
	"ar-tn": true,
}

// NeedsRefinement reports whether transcripts in lang go through the
// correction pass.
func NeedsRefinement(lang string) bool {
	return refinableLangs[strings.ToLower(lang)]
}

// Corrector is the single-text refinement operation, satisfied by
// *Processor.
type Corrector interface {
	Correct(ctx context.Context, text string) (*Refinement, error)
	Enabled() bool
}

// Refiner applies dialect correction across a segment batch, with a Redis
// cache in front of the helper since repeated phrases are common in
// conversational audio.
type Refiner struct {
	corrector Corrector
	cache     *cache.Cache
	log       *logger.Logger
}

// NewRefiner builds a refiner. cache may be nil to skip caching.
func NewRefiner(corrector Corrector, c *cache.Cache) *Refiner {
	return &Refiner{
		corrector: corrector,
		cache:     c,
		log:       logger.Default().WithComponent("dialect"),
	}
}

// Enabled reports whether refinement can run at all
func (r *Refiner) Enabled() bool {
	return r.corrector != nil && r.corrector.Enabled()
}

// RefineSegments corrects each segment's working text in place and stores
// the pre-correction form in NormalizedText. Per-segment failures keep
// that segment's text unchanged; refinement never fails a batch.
func (r *Refiner) RefineSegments(ctx context.Context, segments []segment.Segment) []segment.Segment {
	if !r.Enabled() {
		return segments
	}

	out := segment.Clone(segments)
	var failures int

	for i := range out {
		if err := ctx.Err(); err != nil {
			r.log.Warn(ctx, "refinement cancelled mid-batch", map[string]interface{}{
				"refined": i,
				"total":   len(out),
			})
			break
		}

		text := strings.TrimSpace(out[i].Text)
		if text == "" {
			continue
		}

		ref, err := r.correctCached(ctx, text)
		if err != nil {
			failures++
			continue
		}
		if ref.Corrected == "" {
			continue
		}

		out[i].NormalizedText = out[i].Text
		out[i].Text = ref.Corrected
	}

	if failures > 0 {
		r.log.Warn(ctx, "some segments left unrefined", map[string]interface{}{
			"failed": failures,
			"total":  len(out),
		})
	}

	return out
}

func (r *Refiner) correctCached(ctx context.Context, text string) (*Refinement, error) {
	key := cacheKey(text)

	if r.cache != nil {
		var cached Refinement
		if r.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	ref, err := r.corrector.Correct(ctx, text)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.SetJSON(ctx, key, ref, cacheTTL)
	}
	return ref, nil
}

func cacheKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return "dialect:correct:" + hex.EncodeToString(sum[:])
}
