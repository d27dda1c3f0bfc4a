package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/verakko/jobsnap/internal/cache"
	"github.com/verakko/jobsnap/internal/posting"
	"github.com/verakko/jobsnap/internal/reduce"
	"github.com/verakko/jobsnap/internal/render"
	"github.com/verakko/jobsnap/internal/urlutil"
)

// Extractor is the structured-extraction stage as the pipeline sees it.
type Extractor interface {
	Extract(ctx context.Context, text, url string) (posting.JobPosting, error)
}

// ErrNoData marks a technically successful extraction that found neither a
// company name nor a position title. Adapters map it to the manual-entry
// message instead of the generic failure one.
var ErrNoData = errors.New("no job information found")

// RequireIdentity converts the business-rule outcome of an unidentifiable
// posting into ErrNoData so callers can branch on errors alone.
func RequireIdentity(p posting.JobPosting) error {
	if !p.HasIdentity() {
		return fmt.Errorf("%w at %s", ErrNoData, p.JobURL)
	}
	return nil
}

// ScrapeError is the single outward-facing failure type for the pipeline. It
// records which stage failed and keeps the underlying cause reachable through
// Unwrap.
type ScrapeError struct {
	URL   string
	Stage string
	Err   error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape %s: %s: %v", e.URL, e.Stage, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Pipeline composes fetching, reduction, extraction and the cache into the
// single public scrape operation. Each call is independent; the only shared
// state is the cache's backing store and the optional single-flight group.
type Pipeline struct {
	Fetcher   render.Fetcher
	Extractor Extractor
	Cache     cache.Store
	// SingleFlight collapses concurrent scrapes of the same normalized URL
	// into one pipeline run. Correctness does not depend on it; two racing
	// runs would simply both compute and the last cache write wins.
	SingleFlight bool

	group singleflight.Group
}

// Scrape runs the full pipeline for rawURL. A cache hit returns the stored
// posting unchanged without fetching or extracting. On a miss the completed
// result, including the reduced text, is written through the cache before
// returning. Failures never write partial results.
func (p *Pipeline) Scrape(ctx context.Context, rawURL string) (posting.JobPosting, error) {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return posting.JobPosting{}, &ScrapeError{URL: rawURL, Stage: "validate", Err: err}
	}

	if p.Cache != nil {
		if hit, ok := p.Cache.Get(ctx, u); ok {
			log.Debug().Str("url", u).Msg("cache hit")
			return *hit, nil
		}
	}

	if !p.SingleFlight {
		return p.run(ctx, u)
	}
	v, err, _ := p.group.Do(cache.Fingerprint(u), func() (any, error) {
		return p.run(ctx, u)
	})
	if err != nil {
		return posting.JobPosting{}, err
	}
	return v.(posting.JobPosting), nil
}

func (p *Pipeline) run(ctx context.Context, u string) (posting.JobPosting, error) {
	start := time.Now()

	html, err := p.Fetcher.Fetch(ctx, u)
	if err != nil {
		return posting.JobPosting{}, &ScrapeError{URL: u, Stage: "fetch", Err: err}
	}

	text := reduce.Reduce(html)
	if text == "" {
		log.Debug().Str("url", u).Msg("page reduced to empty text")
	}

	result, err := p.Extractor.Extract(ctx, text, u)
	if err != nil {
		return posting.JobPosting{}, &ScrapeError{URL: u, Stage: "extract", Err: err}
	}
	result.JobURL = u
	result.CleanTextContent = &text

	if p.Cache != nil {
		if err := p.Cache.Put(ctx, u, result); err != nil {
			// A failed write costs a future recompute, not this request.
			log.Warn().Err(err).Str("url", u).Msg("cache write failed")
		}
	}

	log.Info().
		Str("url", u).
		Dur("took", time.Since(start)).
		Bool("identified", result.HasIdentity()).
		Msg("scraped job posting")
	return result, nil
}
