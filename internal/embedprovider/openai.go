package embedprovider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type openAIClient struct {
	config *Config
	http   *http.Client
}

func newOpenAIClient(cfg *Config) *openAIClient {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = "gpt-4o-mini"
	}
	if cfg.Dim == 0 {
		switch cfg.EmbedModel {
		case "text-embedding-3-large":
			cfg.Dim = 3072
		default:
			cfg.Dim = 1536
		}
	}

	transport := &http.Transport{}
	if skipTLS, _ := strconv.ParseBool(os.Getenv("CODEKNOW_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &openAIClient{
		config: cfg,
		http:   &http.Client{Timeout: 20 * time.Second, Transport: transport},
	}
}

// Embed sends the whole batch as a single request: the OpenAI embeddings
// endpoint accepts an array of inputs and returns embeddings in the same
// order.
func (c *openAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.config.APIKey == "" {
		return nil, ErrProviderUnavailable
	}

	payload := map[string]any{
		"input": texts,
		"model": c.config.EmbedModel,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("close embedding response body")
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ErrProviderUnavailable
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, errors.New("openai embedding: unexpected result count")
	}

	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (c *openAIClient) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	if c.config.APIKey == "" {
		return "", ErrProviderUnavailable
	}

	const maxInput = 8000
	if len(content) > maxInput {
		content = content[:maxInput]
	}

	sys := "You are a concise code summarizer. Write at most 240 characters, 1-2 sentences, no code blocks, no backticks. Mention the element's purpose. Prefer verbs."
	user := "Path: " + filePath + "\nLanguage: " + language + "\n---\n" + content

	payload := map[string]any{
		"model": c.config.SummaryModel,
		"messages": []map[string]string{
			{"role": "system", "content": sys},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
		"max_tokens":  120,
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("close summarize response body")
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ErrProviderUnavailable
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai summarize: no choices")
	}

	s := strings.TrimSpace(out.Choices[0].Message.Content)
	return strings.ReplaceAll(s, "\n", " "), nil
}

func (c *openAIClient) Dim() int { return c.config.Dim }

func (c *openAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
