package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/dealflowhq/dealflow/internal/telemetry"
	"github.com/dealflowhq/dealflow/internal/types"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTokens      = 2048
)

// errAPIKeyRequired is returned when an API key is needed but not provided.
var errAPIKeyRequired = errors.New("API key required")

// AnthropicGenerator produces section prose via the Anthropic API.
type AnthropicGenerator struct {
	client         anthropic.Client
	model          anthropic.Model
	sectionTmpl    *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicGenerator creates a generator. Env var ANTHROPIC_API_KEY takes
// precedence over the explicit apiKey.
func NewAnthropicGenerator(apiKey, model string) (*AnthropicGenerator, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", errAPIKeyRequired)
	}
	if model == "" {
		model = DefaultModel
	}

	tmpl, err := template.New("section").Parse(sectionPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse section template: %w", err)
	}

	genMetricsOnce.Do(initGenMetrics)

	return &AnthropicGenerator{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		sectionTmpl:    tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// GenerateSection renders the prompt for one section and calls the API.
// Failures surface as a GenerationFailedError so callers can leave the
// version state untouched.
func (g *AnthropicGenerator) GenerateSection(ctx context.Context, req SectionRequest) (string, error) {
	prompt, err := g.renderPrompt(req)
	if err != nil {
		return "", &types.GenerationFailedError{Section: req.Section, Cause: err}
	}

	content, err := g.callWithRetry(ctx, req.Section, prompt)
	if err != nil {
		return "", &types.GenerationFailedError{Section: req.Section, Cause: err}
	}
	return content, nil
}

// genMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var genMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var genMetricsOnce sync.Once

func initGenMetrics() {
	m := telemetry.Meter("github.com/dealflowhq/dealflow/generate")
	genMetrics.inputTokens, _ = m.Int64Counter("dfl.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	genMetrics.outputTokens, _ = m.Int64Counter("dfl.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	genMetrics.duration, _ = m.Float64Histogram("dfl.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func (g *AnthropicGenerator) callWithRetry(ctx context.Context, section, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/dealflowhq/dealflow/generate")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("dfl.ai.model", string(g.model)),
		attribute.String("dfl.ai.section", section),
	)

	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := g.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("dfl.ai.model", string(g.model))
			if genMetrics.inputTokens != nil {
				genMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				genMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				genMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(
				attribute.Int64("dfl.ai.input_tokens", message.Usage.InputTokens),
				attribute.Int64("dfl.ai.output_tokens", message.Usage.OutputTokens),
				attribute.Int("dfl.ai.attempts", attempt+1),
			)

			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return "", fmt.Errorf("failed after %d retries: %w", g.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || statusCode >= 500 {
			return true
		}
		return false
	}

	return false
}

type sectionPromptData struct {
	Section      string
	Title        string
	Address      string
	PropertyType string
	Facts        string
}

func (g *AnthropicGenerator) renderPrompt(req SectionRequest) (string, error) {
	data := sectionPromptData{
		Section: req.Section,
		Facts:   formatFacts(req.Facts),
	}
	if req.Deal != nil {
		data.Title = req.Deal.Title
		data.Address = req.Deal.Address
		data.PropertyType = req.Deal.PropertyType
	}

	var buf strings.Builder
	if err := g.sectionTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatFacts renders the authoritative values as stable "field: value" lines.
func formatFacts(facts map[string]string) string {
	fields := make([]string, 0, len(facts))
	for f := range facts {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var buf strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&buf, "- %s: %s\n", f, facts[f])
	}
	return buf.String()
}

const sectionPromptTemplate = `You are drafting the "{{.Section}}" section of a commercial real estate offering memorandum.

**Property:** {{.Title}}
{{if .Address}}**Address:** {{.Address}}
{{end}}{{if .PropertyType}}**Property type:** {{.PropertyType}}
{{end}}
**Verified facts:**
{{.Facts}}

STRICT RULES:
- Use ONLY the verified facts above. Never invent figures, dates, tenant names, or property characteristics.
- If a fact needed for this section is absent, omit it; do not estimate.
- Write in the neutral, professional register of institutional CRE marketing material.
- Output the section body only, without a heading.`
