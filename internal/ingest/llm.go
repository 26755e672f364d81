package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// FieldExtractor pulls structured study fields out of document content.
type FieldExtractor interface {
	ExtractStudyFields(ctx context.Context, content ExtractedContent) (StudyExtract, error)
}

const extractionSystemPrompt = `You extract clinical trial metadata from protocol documents.
Respond with a single JSON object and nothing else, using these keys:
protocolNumber, title, phase, sponsor, indication, arms, objectives, visits, assessments.
arms, objectives, visits and assessments are arrays of strings.
Use "" or [] for anything the document does not state. Do not invent values.`

// AnthropicExtractor calls Claude to read protocol documents. Text
// content is token-budgeted before sending; PDFs go up as document
// blocks for the model to read directly.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	estimator *Estimator
	logger    *zap.Logger
}

func NewAnthropicExtractor(logger *zap.Logger) (*AnthropicExtractor, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ingest: ANTHROPIC_API_KEY not set")
	}
	model := getenvDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5")
	return &AnthropicExtractor{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 4096,
		estimator: NewEstimator(),
		logger:    logger,
	}, nil
}

func (e *AnthropicExtractor) ExtractStudyFields(ctx context.Context, content ExtractedContent) (StudyExtract, error) {
	var blocks []anthropic.ContentBlockParamUnion
	switch {
	case len(content.PDF) > 0:
		blocks = append(blocks,
			anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data: base64.StdEncoding.EncodeToString(content.PDF),
			}),
			anthropic.NewTextBlock("Extract the study metadata from this protocol document."))
	case strings.TrimSpace(content.Text) != "":
		text := e.estimator.Truncate(content.Text, documentTokenBudget)
		blocks = append(blocks, anthropic.NewTextBlock("Protocol document:\n\n"+text))
	default:
		return StudyExtract{}, errors.New("no extractable content")
	}

	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: extractionSystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return StudyExtract{}, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if t, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	e.logger.Debug("llm extraction response",
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))

	return parseExtractJSON(sb.String())
}

// parseExtractJSON tolerates a fenced code block around the JSON but
// nothing else.
func parseExtractJSON(raw string) (StudyExtract, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var extract StudyExtract
	if err := json.Unmarshal([]byte(raw), &extract); err != nil {
		return StudyExtract{}, fmt.Errorf("model returned malformed JSON: %w", err)
	}
	return extract, nil
}
