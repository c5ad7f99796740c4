package embedprovider

import (
	"context"
	"errors"
	"time"

	"github.com/seanblong/codeknow/internal/apperr"
)

// timeoutClient applies a per-call deadline to Embed and Summarize,
// surfacing expiry as DependencyTimeout.
type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// WithTimeout wraps client so every provider call observes the given
// per-call deadline. A non-positive timeout returns client unchanged.
func WithTimeout(client Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return client
	}
	return &timeoutClient{inner: client, timeout: timeout}
}

func (c *timeoutClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	vecs, err := c.inner.Embed(ctx, texts)
	return vecs, timeoutErr(err)
}

func (c *timeoutClient) Summarize(ctx context.Context, filePath, language, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	summary, err := c.inner.Summarize(ctx, filePath, language, content)
	return summary, timeoutErr(err)
}

func (c *timeoutClient) Dim() int { return c.inner.Dim() }

func timeoutErr(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.DependencyTimeout, "embedding call deadline expired", err)
	}
	return err
}

var _ Client = (*timeoutClient)(nil)
