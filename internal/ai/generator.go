package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loadgenie/loadgenie/internal/script"
)

const generatorSystemPrompt = `You are an expert performance engineer who writes k6 load test scripts.
Write a complete, runnable k6 script in JavaScript for the scenario the user describes.
The script must import http from 'k6/http' and { check, sleep } from 'k6',
export an options object with realistic thresholds, export a default function,
validate every response with check(), and pause between iterations with sleep().
Prefer retry logic, try/catch error handling and console.error logging of failures.`

const scriptSchema = `{
  "type": "object",
  "properties": {
    "k6_script": {"type": "string", "minLength": 1}
  },
  "required": ["k6_script"]
}`

// Generator turns natural-language descriptions into k6 scripts.
type Generator struct {
	client *Client
}

func NewGenerator(c *Client) *Generator {
	return &Generator{client: c}
}

// Generate returns a script for description. The description is trimmed
// and must satisfy script.CheckDescription.
func (g *Generator) Generate(ctx context.Context, description string) (string, error) {
	desc, err := script.CheckDescription(description)
	if err != nil {
		return "", err
	}
	if g == nil || g.client == nil {
		return "", ErrDisabled
	}

	raw, err := g.client.CompleteJSON(ctx, generatorSystemPrompt, "Scenario: "+desc, scriptSchema)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}

	var out struct {
		K6Script string `json:"k6_script"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode script: %v", ErrPermanent, err)
	}
	src := strings.TrimSpace(out.K6Script)
	if src == "" {
		return "", fmt.Errorf("%w: empty script", ErrPermanent)
	}

	if !strings.Contains(src, "export default function") || !strings.Contains(src, "http") {
		slog.Warn("Generated script may be missing essential k6 elements", "length", len(src))
	}
	return src, nil
}

// GenerateEnhanced generates a script and runs it through validation,
// repair and enhancement.
func (g *Generator) GenerateEnhanced(ctx context.Context, description string) (*script.Result, error) {
	src, err := g.Generate(ctx, description)
	if err != nil {
		return nil, err
	}
	res := script.ValidateAndImprove(src)
	if g.client != nil {
		g.client.metrics.ScriptScore(res.Report.Score)
	}
	slog.Info("Generated enhanced script",
		"quality_score", res.Report.Score,
		"rating", res.Report.Rating,
		"repaired", res.Repaired,
		"enhanced", res.Enhanced,
	)
	return res, nil
}
