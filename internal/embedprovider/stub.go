package embedprovider

import (
	"context"
	"strings"
)

// stubClient is a deterministic, dependency-free Client used in tests and
// as the default provider until a real one is configured.
type stubClient struct {
	dim int
}

func newStubClient(dim int) *stubClient {
	return &stubClient{dim: dim}
}

func (s *stubClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s *stubClient) Summarize(_ context.Context, filePath, _, content string) (string, error) {
	lines := strings.Split(content, "\n")
	for _, line := range lines[:min(5, len(lines))] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			if len(line) > 10 {
				return line, nil
			}
		}
	}
	return "Code file: " + filePath, nil
}

func (s *stubClient) Dim() int { return s.dim }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
