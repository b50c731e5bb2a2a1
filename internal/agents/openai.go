package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/patch"
)

// Options configures the OpenAI-backed collaborator client.
type Options struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration // per-attempt limit
	Attempts int           // transport retries, total attempts
	Backoff  time.Duration // initial backoff, doubled per retry
}

// OpenAIClient implements both Reviewer and Editor over the OpenAI chat
// completions API.
type OpenAIClient struct {
	model    string
	opts     []option.RequestOption
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	log      *slog.Logger
	sleep    func(time.Duration)
}

var (
	_ Reviewer = (*OpenAIClient)(nil)
	_ Editor   = (*OpenAIClient)(nil)
)

// NewOpenAIClient builds a collaborator client. APIKey and Model are
// required; zero Timeout, Attempts, and Backoff get workable defaults.
func NewOpenAIClient(o Options, log *slog.Logger) (*OpenAIClient, error) {
	if o.APIKey == "" {
		return nil, errors.New("openai client: api key is required")
	}
	if o.Model == "" {
		return nil, errors.New("openai client: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{
		model:    o.Model,
		opts:     opts,
		timeout:  o.Timeout,
		attempts: o.Attempts,
		backoff:  o.Backoff,
		log:      log,
		sleep:    time.Sleep,
	}, nil
}

// complete sends one system+user exchange and returns the raw assistant
// message. Transport failures are retried with exponential backoff; an
// empty completion is reported as an error for the caller to degrade.
func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	client := openai.NewClient(c.opts...)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	}

	var lastErr error
	wait := c.backoff
	for attempt := 1; attempt <= c.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := client.Chat.Completions.New(callCtx, params)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return "", errors.New("complete: empty response")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("complete: %w", ctx.Err())
		}
		if !isTransient(err) {
			return "", fmt.Errorf("complete: %w", err)
		}
		if attempt < c.attempts {
			c.log.Warn("transient collaborator failure, retrying",
				"attempt", attempt, "backoff", wait, "error", err)
			c.sleep(wait)
			wait *= 2
		}
	}
	return "", fmt.Errorf("complete: attempts exhausted: %w", lastErr)
}

// isTransient distinguishes retryable transport failures from terminal
// ones. Rate limits and server errors retry; client errors (bad request,
// auth) do not. Errors without an HTTP status are network-level and retry.
// Per-attempt timeouts count as failed attempts, not cancellation.
func isTransient(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 429 || apierr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Review submits the document for critique and returns normalized issues.
// Malformed output degrades to an empty issue list.
func (c *OpenAIClient) Review(ctx context.Context, document string, scope Scope) ([]model.Issue, error) {
	raw, err := c.complete(ctx, reviewerSystemPrompt, reviewPrompt(scope, document))
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	var payload struct {
		Issues []model.Issue `json:"issues"`
	}
	if err := extractJSON(raw, &payload); err != nil {
		c.log.Warn("unparseable review response, treating as no issues", "error", err)
		return []model.Issue{}, nil
	}

	issues := make([]model.Issue, 0, len(payload.Issues))
	for i := range payload.Issues {
		is := payload.Issues[i]
		if err := model.NormalizeIssue(&is); err != nil {
			c.log.Warn("dropping issue without id", "title", is.Title)
			continue
		}
		issues = append(issues, is)
	}
	return issues, nil
}

// Verify asks the reviewer whether a fix satisfied the issue's acceptance
// criteria. Malformed output degrades to an open verdict.
func (c *OpenAIClient) Verify(ctx context.Context, issue model.Issue, diffSummary, newText string) (model.VerificationStatus, string, error) {
	raw, err := c.complete(ctx, reviewerSystemPrompt, verifyPrompt(issue, diffSummary, newText))
	if err != nil {
		return model.VerificationOpen, "", fmt.Errorf("verify %s: %w", issue.ID, err)
	}

	var payload struct {
		Status   string `json:"status"`
		Feedback string `json:"feedback"`
	}
	if err := extractJSON(raw, &payload); err != nil {
		c.log.Warn("unparseable verification response", "issue", issue.ID, "error", err)
		return model.VerificationOpen, "Parse error", nil
	}
	if payload.Feedback == "" {
		payload.Feedback = "No feedback"
	}
	if payload.Status == string(model.VerificationResolved) {
		return model.VerificationResolved, payload.Feedback, nil
	}
	return model.VerificationOpen, payload.Feedback, nil
}

// GeneratePatch asks the editor for a structured edit fixing one issue.
// Malformed output or an operation-free patch returns nil, nil.
func (c *OpenAIClient) GeneratePatch(ctx context.Context, issue model.Issue, content, filename string, pctx PatchContext) (*patch.Edit, error) {
	raw, err := c.complete(ctx, editorSystemPrompt, patchPrompt(issue, content, filename, pctx))
	if err != nil {
		return nil, fmt.Errorf("generate patch %s: %w", issue.ID, err)
	}

	var edit patch.Edit
	if err := extractJSON(raw, &edit); err != nil {
		c.log.Warn("unparseable patch response", "issue", issue.ID, "error", err)
		return nil, nil
	}
	if len(edit.Operations) == 0 {
		c.log.Warn("patch response has no operations", "issue", issue.ID)
		return nil, nil
	}
	if edit.IssueID == "" {
		edit.IssueID = issue.ID
	}
	if edit.TargetFile == "" {
		edit.TargetFile = filename
	}
	return &edit, nil
}
