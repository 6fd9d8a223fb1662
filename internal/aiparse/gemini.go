package aiparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"astrogems/backend/internal/domain"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiParser calls the Gemini generateContent REST endpoint with a JSON
// response schema. The HTTP client's timeout is the only deadline; the core
// does not enforce one of its own.
type GeminiParser struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewGeminiParser(apiKey string, model string, timeout time.Duration, logger *zap.Logger) *GeminiParser {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiParser{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type generateContentRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func itemSchema() map[string]any {
	return map[string]any{
		"type": "ARRAY",
		"items": map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"particulars": map[string]any{"type": "STRING"},
				"quantity":    map[string]any{"type": "NUMBER"},
				"weight":      map[string]any{"type": "NUMBER"},
				"weightUnit":  map[string]any{"type": "STRING"},
				"unitPrice":   map[string]any{"type": "NUMBER"},
			},
			"required": []string{"particulars", "quantity", "unitPrice"},
		},
	}
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`You are an expert gemologist assistant for an astrology store. Parse the following billing request:
Input text: %q

Instructions:
1. Particulars: Identify the Gemstone (e.g. Neelam, Pukhraj, Emerald) or Service (Consultation).
2. Weight: Extract the numeric value of weight.
3. WeightUnit: Default to 'ct' (carats) for stones, or 'ratti' if mentioned. Use '-' for services.
4. Quantity: Default to 1.
5. UnitPrice: Extract the price per piece or per carat if possible.

Return as a JSON array.`, text)
}

func (p *GeminiParser) ParseItems(ctx context.Context, text string) []domain.ItemDraft {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	payload, err := json.Marshal(generateContentRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildPrompt(text)}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   itemSchema(),
		},
	})
	if err != nil {
		p.logger.Error("encode parse request", zap.Error(err))
		return nil
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.endpoint, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		p.logger.Error("build parse request", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("ai parse call failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.logger.Warn("read ai parse response", zap.Error(err))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("ai parse non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("model", p.model),
		)
		return nil
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		p.logger.Warn("decode ai parse envelope", zap.Error(err))
		return nil
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil
	}

	raw := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	var drafts []domain.ItemDraft
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil {
		p.logger.Warn("malformed ai parse payload", zap.Error(err))
		return nil
	}
	return drafts
}
