package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/verakko/jobsnap/internal/llm"
	"github.com/verakko/jobsnap/internal/posting"
)

const (
	// DefaultMaxRetries bounds rate-limit retries beyond the initial attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the first backoff delay; it doubles per retry.
	DefaultBaseDelay = 5 * time.Second
)

const systemMessage = "You are a job posting parser. Respond with exactly one JSON object and nothing else — no markdown, no code fences, no narration. The object has exactly these keys: company_name, position_title, location, salary, description, requirements, application_deadline, ai_thoughts. Every value is a string or null; use null for anything the text does not determine. description is a concise summary of the role, requirements lists the stated qualifications verbatim, application_deadline is the stated deadline if any, and ai_thoughts is short strategic advice on how a candidate could stand out for this role."

// fields mirrors the backend's key set. Pointer values keep absent or null
// keys as nil; unrecognized extra keys are ignored by the decoder.
type fields struct {
	CompanyName         *string `json:"company_name"`
	PositionTitle       *string `json:"position_title"`
	Location            *string `json:"location"`
	Salary              *string `json:"salary"`
	Description         *string `json:"description"`
	Requirements        *string `json:"requirements"`
	ApplicationDeadline *string `json:"application_deadline"`
	AIThoughts          *string `json:"ai_thoughts"`
}

// Extractor turns reduced page text into a structured posting via the
// inference backend, retrying rate-limit failures with exponential backoff.
// Retry state lives entirely within one Extract call.
type Extractor struct {
	Client llm.Client
	Model  string
	// MaxRetries caps retries after the initial attempt. Zero means
	// DefaultMaxRetries; negative disables retries.
	MaxRetries int
	// BaseDelay is the initial backoff delay. Zero means DefaultBaseDelay.
	BaseDelay time.Duration
	// Sleep is a hook for tests. Nil sleeps on a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Extract sends the reduced text to the backend and parses the structured
// reply. JobURL on the result is always the given url, regardless of what the
// backend emitted; CleanTextContent is left for the caller to attach.
func (x *Extractor) Extract(ctx context.Context, text, url string) (posting.JobPosting, error) {
	if x.Client == nil || strings.TrimSpace(x.Model) == "" {
		return posting.JobPosting{}, errors.New("extractor not configured")
	}

	req := openai.ChatCompletionRequest{
		Model: x.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(text, url)},
		},
		Temperature: 0.1,
		N:           1,
	}

	maxRetries := x.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}
	delay := x.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = x.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		switch Classify(err) {
		case KindPolicyRejection:
			return posting.JobPosting{}, &PolicyRejectionError{Reason: err.Error()}
		case KindRateLimit:
			if attempt >= maxRetries {
				return posting.JobPosting{}, &RateLimitError{Attempts: attempt + 1, Err: err}
			}
			log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("backend rate limited; retrying")
			if serr := x.sleep(ctx, delay); serr != nil {
				return posting.JobPosting{}, serr
			}
			delay *= 2
		default:
			return posting.JobPosting{}, fmt.Errorf("extraction call: %w", err)
		}
	}

	if len(resp.Choices) == 0 {
		return posting.JobPosting{}, errors.New("backend returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return posting.JobPosting{}, &PolicyRejectionError{Reason: "response withheld by content filter"}
	}

	raw := StripFences(strings.TrimSpace(choice.Message.Content))
	var f fields
	if jerr := json.Unmarshal([]byte(raw), &f); jerr != nil {
		return posting.JobPosting{}, &MalformedResponseError{Raw: raw, Err: jerr}
	}

	return posting.JobPosting{
		CompanyName:         f.CompanyName,
		PositionTitle:       f.PositionTitle,
		Location:            f.Location,
		Salary:              f.Salary,
		Description:         f.Description,
		Requirements:        f.Requirements,
		ApplicationDeadline: f.ApplicationDeadline,
		AIThoughts:          f.AIThoughts,
		JobURL:              url,
	}, nil
}

func (x *Extractor) sleep(ctx context.Context, d time.Duration) error {
	if x.Sleep != nil {
		return x.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StripFences removes a markdown code fence wrapper (``` with an optional
// language tag) that some backends emit despite instructions. This is
// tolerated backend behavior, not an error; unfenced input passes through
// unchanged.
func StripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	i := strings.IndexByte(body, '\n')
	if i < 0 {
		// A bare fence with no content; let the JSON parser reject it.
		return s
	}
	// Drop the opening fence line along with any language tag.
	body = body[i+1:]
	body = strings.TrimRight(body, " \t\n")
	if strings.HasSuffix(body, "```") {
		body = strings.TrimRight(strings.TrimSuffix(body, "```"), " \t\n")
	}
	return body
}

func buildUserMessage(text, url string) string {
	var sb strings.Builder
	sb.WriteString("Extract the job posting details from the following page text.")
	sb.WriteString("\nPage URL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nPage text:\n\"\"\"\n")
	sb.WriteString(text)
	sb.WriteString("\n\"\"\"\n")
	return sb.String()
}
