package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// permissiveSafety disables blocking on every harm category. Song lyrics
// routinely trip the default thresholds.
var permissiveSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

// Gemini generates text with the Google Gemini API and can ground answers
// on Google Search.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (used by tests).
	BaseURL string
	Timeout time.Duration
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredentials
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (g *Gemini) Name() string { return "gemini/" + g.model }

func (g *Gemini) SupportsWebSearch() bool { return true }

// Generate sends one GenerateContent call.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), geminiConfig(req))
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := StripFences(resp.Text())
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text, Sources: groundingSources(resp)}, nil
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(req.Temperature),
		SafetySettings: permissiveSafety,
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(req.ThinkingBudget))}
	}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// groundingSources collects the web URIs of the first candidate's grounding chunks.
func groundingSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	md := resp.Candidates[0].GroundingMetadata
	if md == nil {
		return nil
	}
	var uris []string
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uris = append(uris, chunk.Web.URI)
	}
	return dedupe(uris)
}
