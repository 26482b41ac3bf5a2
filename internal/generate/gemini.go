package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"quill/internal/query"
)

// defaultGeminiModel is used when the caller does not pin one.
const defaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator produces fragments with the Gemini API. It satisfies the
// same contract as the template generator; the validator and sandbox treat
// its output as untrusted input exactly the same way. Determinism cannot be
// guaranteed for a model call, so the model name and temperature are folded
// into Version for replay audits.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, log: log}, nil
}

func (g *GeminiGenerator) Version() string {
	return "gemini/" + g.model + "/temp=0"
}

// Generate prompts the model for a fragment under the Analyze contract.
// The model call runs under the caller's ctx, so an interrupted turn
// aborts the network request instead of hanging on it.
func (g *GeminiGenerator) Generate(ctx context.Context, q query.StructuredQuery) (GeneratedCode, error) {
	prompt := buildGeminiPrompt(q)

	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp})
	if err != nil {
		if ctx.Err() != nil {
			return GeneratedCode{}, ctx.Err()
		}
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: fmt.Sprintf("model call failed: %v", err)}
	}

	src := stripCodeFences(resp.Text())
	if src == "" {
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "model returned no code"}
	}
	if !strings.Contains(src, "func Analyze(") {
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "model output does not declare the Analyze entry point"}
	}

	g.log.Debug("gemini fragment generated",
		zap.String("model", g.model),
		zap.Int("bytes", len(src)))
	return GeneratedCode{Source: src, DeclaredInputs: declaredInputs()}, nil
}

// buildGeminiPrompt describes the schema and the fragment contract. Only
// column names and types are sent, never row data.
func buildGeminiPrompt(q query.StructuredQuery) string {
	var b strings.Builder
	b.WriteString("Write a Go code fragment that answers a statistical question about a tabular dataset.\n\n")
	b.WriteString("Contract:\n")
	b.WriteString("- Declare exactly: func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error)\n")
	b.WriteString("- nums holds the numeric columns, strs the text columns, keyed by column name; all columns have equal length.\n")
	b.WriteString("- Import only from: errors, fmt, math, sort, strings, strconv, unicode.\n")
	b.WriteString("- No file, network, process, goroutine, channel or reflection use. Return errors, never panic.\n")
	b.WriteString("- Respond with the Go fragment only, no explanations.\n\n")

	if len(q.Schema) > 0 {
		b.WriteString("Dataset columns:\n")
		for _, c := range q.Schema {
			fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.Type)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No dataset is loaded; if the question needs columns, return an error value explaining that.\n\n")
	}

	if len(q.Requirements) > 0 {
		keys := make([]string, 0, len(q.Requirements))
		for k := range q.Requirements {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Requirements from earlier turns:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s = %s\n", k, q.Requirements[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(q.Text)
	return b.String()
}

// stripCodeFences removes markdown fences the model tends to wrap code in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```go")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
