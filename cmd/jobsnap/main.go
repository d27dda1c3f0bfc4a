package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/verakko/jobsnap/internal/api"
	"github.com/verakko/jobsnap/internal/cache"
	"github.com/verakko/jobsnap/internal/config"
	"github.com/verakko/jobsnap/internal/extract"
	"github.com/verakko/jobsnap/internal/llm"
	"github.com/verakko/jobsnap/internal/render"
	"github.com/verakko/jobsnap/internal/scrape"
)

const defaultCacheDir = ".jobsnap-cache"

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		url          string
		serveAddr    string
		configPath   string
		llmBase      string
		llmModel     string
		llmKey       string
		cacheDir     string
		cacheTTL     time.Duration
		cacheClear   bool
		cacheMaxAge  time.Duration
		fetchTimeout time.Duration
		fetchUA      string
		reqTimeout   time.Duration
		verbose      bool
	)

	flag.StringVar(&url, "url", "", "Job posting URL to scrape (one-shot mode)")
	flag.StringVar(&serveAddr, "serve", "", "Listen address for the HTTP API, e.g. :8000 (server mode)")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.StringVar(&llmBase, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Model name")
	flag.StringVar(&llmKey, "llm.key", firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY")), "API key for the inference backend")
	flag.StringVar(&cacheDir, "cache.dir", "", "Cache directory path (default "+defaultCacheDir+")")
	flag.DurationVar(&cacheTTL, "cache.ttl", 0, "Age past which cached extractions are recomputed (default 24h)")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before running")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Purge entries older than this before running; 0 disables")
	flag.DurationVar(&fetchTimeout, "fetch.timeout", 0, "Page rendering timeout (default 20s)")
	flag.StringVar(&fetchUA, "fetch.ua", "", "Custom User-Agent for page rendering")
	flag.DurationVar(&reqTimeout, "timeout", 0, "Overall per-scrape timeout; 0 disables")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := config.Config{
		URL:            url,
		ServeAddr:      serveAddr,
		LLMBaseURL:     llmBase,
		LLMModel:       llmModel,
		LLMAPIKey:      llmKey,
		CacheDir:       cacheDir,
		CacheTTL:       cacheTTL,
		FetchTimeout:   fetchTimeout,
		FetchUserAgent: fetchUA,
		RequestTimeout: reqTimeout,
		Verbose:        verbose,
	}
	if configPath != "" {
		fc, err := config.LoadFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		if err := config.Apply(&cfg, fc); err != nil {
			log.Fatal().Err(err).Msg("apply config file")
		}
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
		}
	}
	if cacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(cfg.CacheDir, cacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("purged expired cache entries")
		}
	}

	pipeline := newPipeline(cfg)

	if cfg.ServeAddr != "" {
		srv := api.NewServer(pipeline)
		log.Info().Str("addr", cfg.ServeAddr).Msg("jobsnap API listening")
		if err := http.ListenAndServe(cfg.ServeAddr, srv.Router()); err != nil {
			log.Fatal().Err(err).Msg("serve failed")
		}
		return
	}

	ctx := context.Background()
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	result, err := pipeline.Scrape(ctx, cfg.URL)
	if err != nil {
		log.Error().Err(err).Msg("scrape failed")
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	// Exit code policy: 2 signals "nothing recognizable found" so scripts can
	// prompt for manual entry, distinct from technical failure above.
	if err := scrape.RequireIdentity(result); err != nil {
		if errors.Is(err, scrape.ErrNoData) {
			log.Warn().Str("url", result.JobURL).Msg("no company or title found; enter details manually")
		}
		os.Exit(2)
	}
}

func newPipeline(cfg config.Config) *scrape.Pipeline {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}
	provider := &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(clientCfg)}

	return &scrape.Pipeline{
		Fetcher: &render.ChromeFetcher{
			UserAgent: cfg.FetchUserAgent,
			Timeout:   cfg.FetchTimeout,
		},
		Extractor: &extract.Extractor{
			Client: provider,
			Model:  cfg.LLMModel,
		},
		Cache: &cache.FileStore{
			Dir: cfg.CacheDir,
			TTL: cfg.CacheTTL,
		},
		SingleFlight: true,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
