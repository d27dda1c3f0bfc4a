package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verakko/jobsnap/internal/posting"
	"github.com/verakko/jobsnap/internal/scrape"
)

// User-facing messages. The no-data one asks for manual entry; technical
// failures surface the cause behind a generic prefix.
const (
	msgNoData       = "Could not extract job information from this URL. Please enter details manually."
	msgFailedPrefix = "Failed to scrape URL: "
)

// Scraper is the single core operation the API exposes.
type Scraper interface {
	Scrape(ctx context.Context, url string) (posting.JobPosting, error)
}

// Server is the inbound HTTP adapter around the scrape pipeline.
type Server struct {
	router  *chi.Mux
	scraper Scraper
}

func NewServer(scraper Scraper) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		scraper: scraper,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/scrape", s.handleScrape)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type scrapeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		respondError(w, http.StatusBadRequest, msgFailedPrefix+err.Error())
		return
	}
	if err := scrape.RequireIdentity(result); err != nil {
		respondError(w, http.StatusBadRequest, msgNoData)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
