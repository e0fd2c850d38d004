package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// GeminiClient calls a Vertex AI Gemini model for metric extraction.
type GeminiClient struct {
	model      *genai.GenerativeModel
	modelName  string
	baseClient *genai.Client
}

func NewGeminiClient(ctx context.Context, projectID, region, model string) (*GeminiClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewGeminiClient: projectID and region cannot be empty")
	}
	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	m := baseClient.GenerativeModel(model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &GeminiClient{model: m, modelName: model, baseClient: baseClient}, nil
}

func (c *GeminiClient) Model() string { return c.modelName }

// Extract asks Gemini for the metrics in text.
func (c *GeminiClient) Extract(ctx context.Context, text string, schema metric.Schema) ([]metric.RawRecord, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(BuildPrompt(schema, text)))
	if err != nil {
		return nil, classifyRPC(err)
	}
	out := responseText(resp)
	if out == "" {
		return nil, fmt.Errorf("%w: empty response from gemini", ErrMalformedResponse)
	}
	return DecodeRecords(out)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

// classifyRPC maps gRPC status codes onto the extraction error kinds.
func classifyRPC(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable(err)
	}
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return &RetryableError{Message: err.Error(), Kind: ErrQuotaExceeded}
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted, codes.Unknown:
		return unavailable(err)
	}
	return fmt.Errorf("%w: gemini: %v", ErrServiceUnavailable, err)
}

func (c *GeminiClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
