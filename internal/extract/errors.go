package extract

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Kind tags a backend failure for the retry policy.
type Kind int

const (
	// KindBackend covers generic failures that are not retried.
	KindBackend Kind = iota
	// KindRateLimit marks transient throughput exhaustion, retried with backoff.
	KindRateLimit
	// KindPolicyRejection marks a content-policy refusal, never retried.
	KindPolicyRejection
)

// Classify maps a backend error to its Kind. Keeping classification an
// explicit predicate decouples the backoff policy from any one backend's
// message format.
func Classify(err error) Kind {
	if err == nil {
		return KindBackend
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return KindRateLimit
		}
		if code, ok := apiErr.Code.(string); ok && strings.Contains(strings.ToLower(code), "content_policy") {
			return KindPolicyRejection
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "status code: 429") ||
		strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "safety system"):
		return KindPolicyRejection
	}
	return KindBackend
}

// RateLimitError reports that the backend stayed rate-limited through every
// retry attempt.
type RateLimitError struct {
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("backend rate limited after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// PolicyRejectionError reports that the backend declined the request for
// content-policy reasons.
type PolicyRejectionError struct {
	Reason string
}

func (e *PolicyRejectionError) Error() string {
	return "backend rejected request: " + e.Reason
}

// MalformedResponseError reports that the backend returned text that is not a
// valid JSON object even after code-fence cleanup. Raw keeps the cleaned text
// for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed backend response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
