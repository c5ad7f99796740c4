package embedprovider

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

type vertexAIClient struct {
	config *Config
	client *genai.Client
}

func newVertexAIClient(ctx context.Context, cfg *Config) (*vertexAIClient, error) {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-005"
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = "gemini-2.0-flash"
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}
	if cfg.Location == "" && strings.TrimSpace(cfg.APIKey) == "" {
		cfg.Location = "us-central1"
	}

	cc := genai.ClientConfig{Backend: genai.BackendVertexAI}
	if strings.TrimSpace(cfg.APIKey) != "" {
		cc.APIKey = cfg.APIKey
	}
	if strings.TrimSpace(cfg.ProjectID) != "" {
		cc.Project = cfg.ProjectID
	}
	if strings.TrimSpace(cfg.Location) != "" {
		cc.Location = cfg.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, ErrProviderUnavailable
	}

	return &vertexAIClient{config: cfg, client: client}, nil
}

// Embed calls the embedding endpoint once per text: the Gemini API used
// here embeds a single content per request.
func (c *vertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	cfg := genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
		if err != nil {
			return nil, ErrProviderUnavailable
		}
		if res == nil || len(res.Embeddings) == 0 {
			return nil, errors.New("vertexai embedding: no embedding returned")
		}
		vecs[i] = res.Embeddings[0].Values
	}
	return vecs, nil
}

func (c *vertexAIClient) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	const maxInput = 8000
	if len(content) > maxInput {
		content = content[:maxInput]
	}

	prompt := genai.Text("You are a concise code summarizer. Write at most 240 characters, 1-2 sentences, no code blocks, no backticks. Mention the element's purpose. Prefer verbs.")
	temp := float32(0.2)
	maxTokens := int32(120)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		MaxOutputTokens:   maxTokens,
		SystemInstruction: prompt[0],
	}

	userPrompt := "Path: " + filePath + "\nLanguage: " + language + "\n---\n" + content
	resp, err := c.client.Models.GenerateContent(ctx, c.config.SummaryModel, genai.Text(userPrompt), &cfg)
	if err != nil {
		return "", ErrProviderUnavailable
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("vertexai summarize: no summary returned")
	}

	part := resp.Candidates[0].Content.Parts[0]
	summary := strings.TrimSpace(string(part.Text))
	return strings.ReplaceAll(summary, "\n", " "), nil
}

func (c *vertexAIClient) Dim() int { return c.config.Dim }
