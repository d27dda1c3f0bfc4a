package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// fakeClient replays a scripted sequence of responses and errors, one per
// call, and records how often it was called.
type fakeClient struct {
	calls   int
	replies []reply
}

type reply struct {
	content      string
	finishReason openai.FinishReason
	err          error
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	r := f.replies[i]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	fr := r.finishReason
	if fr == "" {
		fr = openai.FinishReasonStop
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: r.content}, FinishReason: fr},
		},
	}, nil
}

const goodResponse = `{
	"company_name": "Acme",
	"position_title": "Backend Engineer",
	"location": "Helsinki",
	"salary": null,
	"description": "Build services.",
	"requirements": "Go experience.",
	"application_deadline": null,
	"ai_thoughts": "Mention Go production work."
}`

func newExtractor(c *fakeClient) *Extractor {
	return &Extractor{
		Client: c,
		Model:  "test-model",
		Sleep:  func(context.Context, time.Duration) error { return nil },
	}
}

func TestExtractParsesResponse(t *testing.T) {
	c := &fakeClient{replies: []reply{{content: goodResponse}}}
	x := newExtractor(c)

	got, err := x.Extract(context.Background(), "page text", "https://example.com/jobs/1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.CompanyName == nil || *got.CompanyName != "Acme" {
		t.Fatalf("company = %v", got.CompanyName)
	}
	if got.PositionTitle == nil || *got.PositionTitle != "Backend Engineer" {
		t.Fatalf("title = %v", got.PositionTitle)
	}
	if got.Salary != nil {
		t.Fatalf("null salary must stay nil, got %q", *got.Salary)
	}
	if got.JobURL != "https://example.com/jobs/1" {
		t.Fatalf("JobURL = %q", got.JobURL)
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d, want 1", c.calls)
	}
}

func TestExtractFencedEqualsUnfenced(t *testing.T) {
	plain := &fakeClient{replies: []reply{{content: goodResponse}}}
	fenced := &fakeClient{replies: []reply{{content: "```json\n" + goodResponse + "\n```"}}}

	a, err := newExtractor(plain).Extract(context.Background(), "text", "https://example.com/j")
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	b, err := newExtractor(fenced).Extract(context.Background(), "text", "https://example.com/j")
	if err != nil {
		t.Fatalf("fenced: %v", err)
	}
	if *a.CompanyName != *b.CompanyName || *a.PositionTitle != *b.PositionTitle {
		t.Fatalf("fenced and unfenced responses parsed differently")
	}
}

func TestExtractOverridesBackendJobURL(t *testing.T) {
	// Backends sometimes hallucinate extra keys; job_url must always come
	// from the caller.
	body := `{"company_name":"Acme","position_title":"Dev","job_url":"https://evil.example/other"}`
	c := &fakeClient{replies: []reply{{content: body}}}
	got, err := newExtractor(c).Extract(context.Background(), "text", "https://example.com/real")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.JobURL != "https://example.com/real" {
		t.Fatalf("JobURL = %q, want caller value", got.JobURL)
	}
}

func TestExtractMissingKeysStayNil(t *testing.T) {
	c := &fakeClient{replies: []reply{{content: `{"company_name":"Acme"}`}}}
	got, err := newExtractor(c).Extract(context.Background(), "text", "https://example.com/j")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.PositionTitle != nil || got.Location != nil || got.AIThoughts != nil {
		t.Fatalf("absent keys must decode to nil: %+v", got)
	}
}

func TestExtractRateLimitBackoffSchedule(t *testing.T) {
	rl := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	c := &fakeClient{replies: []reply{
		{err: rl}, {err: rl}, {err: rl}, {content: goodResponse},
	}}
	var slept []time.Duration
	x := &Extractor{
		Client: c,
		Model:  "test-model",
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	got, err := x.Extract(context.Background(), "text", "https://example.com/j")
	if err != nil {
		t.Fatalf("Extract after retries: %v", err)
	}
	if got.CompanyName == nil || *got.CompanyName != "Acme" {
		t.Fatalf("result lost through retries: %+v", got)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("backoff %d = %v, want %v", i, slept[i], want[i])
		}
	}
	if c.calls != 4 {
		t.Fatalf("calls = %d, want 4", c.calls)
	}
}

func TestExtractRateLimitExhaustion(t *testing.T) {
	rl := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	c := &fakeClient{replies: []reply{{err: rl}}}
	x := newExtractor(c)

	_, err := x.Extract(context.Background(), "text", "https://example.com/j")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.Attempts != 4 {
		t.Fatalf("Attempts = %d, want 4", rle.Attempts)
	}
	if c.calls != 4 {
		t.Fatalf("calls = %d, want 4 (initial plus three retries)", c.calls)
	}
}

func TestExtractBackendErrorNotRetried(t *testing.T) {
	c := &fakeClient{replies: []reply{{err: errors.New("connection refused")}}}
	x := newExtractor(c)

	_, err := x.Extract(context.Background(), "text", "https://example.com/j")
	if err == nil {
		t.Fatalf("expected error")
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		t.Fatalf("generic failure misclassified as rate limit")
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry for generic failures)", c.calls)
	}
}

func TestExtractPolicyRejectionNotRetried(t *testing.T) {
	c := &fakeClient{replies: []reply{{err: errors.New("request blocked by our safety system")}}}
	x := newExtractor(c)

	_, err := x.Extract(context.Background(), "text", "https://example.com/j")
	var pre *PolicyRejectionError
	if !errors.As(err, &pre) {
		t.Fatalf("err = %v, want PolicyRejectionError", err)
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d, want 1", c.calls)
	}
}

func TestExtractContentFilterFinishReason(t *testing.T) {
	c := &fakeClient{replies: []reply{{content: "", finishReason: openai.FinishReasonContentFilter}}}
	_, err := newExtractor(c).Extract(context.Background(), "text", "https://example.com/j")
	var pre *PolicyRejectionError
	if !errors.As(err, &pre) {
		t.Fatalf("err = %v, want PolicyRejectionError", err)
	}
}

func TestExtractMalformedResponse(t *testing.T) {
	c := &fakeClient{replies: []reply{{content: "Sure! Here is the JSON you asked for."}}}
	_, err := newExtractor(c).Extract(context.Background(), "text", "https://example.com/j")
	var mre *MalformedResponseError
	if !errors.As(err, &mre) {
		t.Fatalf("err = %v, want MalformedResponseError", err)
	}
	if mre.Raw == "" {
		t.Fatalf("Raw must keep the offending text")
	}
}

func TestExtractContextCancelDuringBackoff(t *testing.T) {
	rl := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	c := &fakeClient{replies: []reply{{err: rl}}}
	ctx, cancel := context.WithCancel(context.Background())
	x := &Extractor{
		Client: c,
		Model:  "test-model",
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := x.Extract(ctx, "text", "https://example.com/j")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d, want 1 after cancellation", c.calls)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindBackend},
		{"api 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, KindRateLimit},
		{"api content policy code", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Code: "content_policy_violation"}, KindPolicyRejection},
		{"message rate limit", errors.New("Rate limit reached for requests"), KindRateLimit},
		{"message too many requests", errors.New("too many requests, retry later"), KindRateLimit},
		{"message safety", errors.New("rejected by the safety system"), KindPolicyRejection},
		{"message content_filter", errors.New("finish: content_filter"), KindPolicyRejection},
		{"plain failure", errors.New("dial tcp: connection refused"), KindBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"unfenced passthrough", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no closing fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"trailing whitespace", "```json\n{\"a\":1}\n```  \n", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Fatalf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
