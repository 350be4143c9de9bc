// Package extract routes classified messages to type-specific parsers and
// gates low-confidence results from being applied.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
)

// ConfidenceThreshold is the score below which extracted data is not applied
// and the message is routed to manual review.
const ConfidenceThreshold = 0.7

// Input is the message material handed to the completion service.
type Input struct {
	Subject      string
	Body         string
	Sender       string
	MerchantHint string
}

// Result is the outcome of one extraction: the draft data, the confidence the
// model reported, and whether the draft must go to manual review instead of
// being applied.
type Result struct {
	Extraction  *model.Extraction
	Confidence  float64
	NeedsReview bool
}

// Router invokes the completion service with type-specific prompts. The
// kind-to-parser table is resolved once at construction; unknown kinds are a
// programming error, not a fallthrough.
type Router struct {
	client    service.CompletionClient
	logger    *slog.Logger
	prompts   map[model.MessageKind]string
	retryOpts service.RetryOptions
}

// NewRouter creates a router with the closed parser table.
func NewRouter(client service.CompletionClient, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	prompts := make(map[model.MessageKind]string, len(extractionPrompts))
	for kind, prompt := range extractionPrompts {
		prompts[kind] = prompt
	}

	return &Router{
		client:    client,
		logger:    logger,
		prompts:   prompts,
		retryOpts: common.CompletionRetryOptions(),
	}
}

// Classify asks the completion service which kind of purchase email this is.
func (r *Router) Classify(ctx context.Context, in Input) (model.MessageKind, float64, error) {
	content, err := r.complete(ctx, classifySystemPrompt, buildUserPrompt(in))
	if err != nil {
		return "", 0, err
	}

	var resp struct {
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &resp); err != nil {
		return "", 0, nil // schema violation reads as an unclassifiable message
	}

	kind := model.MessageKind(strings.ToUpper(strings.TrimSpace(resp.Kind)))
	if _, known := r.prompts[kind]; !known && kind != model.KindPromotional {
		r.logger.Warn("classifier returned unknown kind", "kind", resp.Kind)
		return "", 0, nil
	}

	return kind, clampConfidence(resp.Confidence), nil
}

// Extract runs the type-specific parser for an already-classified message.
// A nil extraction or a confidence below the threshold flags the result for
// review; neither is an error.
func (r *Router) Extract(ctx context.Context, kind model.MessageKind, in Input) (Result, error) {
	systemPrompt, ok := r.prompts[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", common.ErrUnknownKind, kind)
	}

	content, err := r.complete(ctx, systemPrompt, buildUserPrompt(in))
	if err != nil {
		return Result{}, err
	}

	extraction := parseExtraction(content)
	if extraction == nil {
		r.logger.Warn("extraction returned no usable data", "kind", kind)
		return Result{NeedsReview: true}, nil
	}
	extraction.Kind = kind

	result := Result{
		Extraction: extraction,
		Confidence: extraction.Confidence,
	}
	if extraction.Confidence < ConfidenceThreshold || extraction.Empty() {
		result.NeedsReview = true
	}

	return result, nil
}

// complete calls the completion service under the shared retry policy.
func (r *Router) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var content string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		content, callErr = r.client.Complete(ctx, systemPrompt, userPrompt)
		return callErr
	}, r.retryOpts)
	if err != nil {
		return "", fmt.Errorf("completion service: %w", err)
	}
	return content, nil
}

// parseExtraction decodes the model's JSON. Any schema violation is treated
// as a null result, not a thrown error.
func parseExtraction(content string) *model.Extraction {
	content = cleanMarkdownWrapper(content)

	var extraction model.Extraction
	if err := json.Unmarshal([]byte(content), &extraction); err != nil {
		return nil
	}

	extraction.Confidence = clampConfidence(extraction.Confidence)
	return &extraction
}

// cleanMarkdownWrapper strips a ```json fence the model sometimes wraps its
// output in.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	return content
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
