package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

// llm-stub is a tiny OpenAI-compatible endpoint for exercising jobsnap
// without a real inference backend. Point -llm.base at it. Set FENCED=1
// to wrap responses in a markdown code fence.

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	fenced := os.Getenv("FENCED") != ""

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sys := ""
		if len(req.Messages) > 0 {
			sys = strings.TrimSpace(req.Messages[0].Content)
		}
		if !strings.Contains(sys, "job posting parser") {
			http.Error(w, "unexpected system", http.StatusBadRequest)
			return
		}
		fields := map[string]any{
			"company_name":         "Example Corp",
			"position_title":       "Backend Engineer",
			"location":             "Helsinki, Finland",
			"salary":               nil,
			"description":          "Build and operate backend services.",
			"requirements":         "Go, SQL, three years of experience.",
			"application_deadline": "2026-09-30",
			"ai_thoughts":          "Emphasize production Go experience in the application.",
		}
		b, _ := json.Marshal(fields)
		content := string(b)
		if fenced {
			content = "```json\n" + content + "\n```"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})

	log.Printf("llm-stub listening on %s (model=%s fenced=%v)", addr, model, fenced)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
