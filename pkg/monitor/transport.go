package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/schema"
)

// Stream is one open event channel. Next blocks until a frame arrives,
// the stream fails, or the request context is canceled.
type Stream interface {
	Next() (schema.ChannelEvent, error)
	Close() error
}

// Transport opens the live event channel for a run. Swapped for an
// in-memory fake in tests.
type Transport interface {
	Open(ctx context.Context, runID string) (Stream, error)
}

// SSETransport opens Server-Sent Event channels against
// GET /tools/api/runs/{id}/events.
type SSETransport struct {
	client *api.Client
	http   *http.Client
}

// NewSSETransport creates an SSETransport. The HTTP client deliberately
// carries no overall timeout: the stream is long-lived and its lifetime
// is bounded by the request context instead.
func NewSSETransport(client *api.Client) *SSETransport {
	return &SSETransport{
		client: client,
		http: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 15 * time.Second,
			},
		},
	}
}

// Open attaches to the run's event channel.
func (t *SSETransport) Open(ctx context.Context, runID string) (Stream, error) {
	path := fmt.Sprintf("/tools/api/runs/%s/events", runID)
	req, err := t.client.NewRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "open event channel for run %s: %s", runID, err).WithCause(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, schema.NewError(schema.ErrCodeAuthRequired, "authentication required")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "event channel for run %s: unexpected status %d", runID, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	// A snapshot frame carries the full run including manifest buckets
	// and can far exceed the scanner's 64KB default line cap. Allow
	// frames up to the same ceiling the JSON client accepts for bodies.
	scanner.Buffer(make([]byte, 64<<10), maxFrameBytes)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

const maxFrameBytes = 8 << 20

// sseStream decodes "event:"/"data:" frames separated by blank lines.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Next() (schema.ChannelEvent, error) {
	var (
		name string
		data strings.Builder
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			// Frame boundary. Heartbeats and comment-only frames carry
			// no data and are skipped.
			if name == "" && data.Len() == 0 {
				continue
			}
			return schema.ChannelEvent{Name: name, Data: []byte(data.String())}, nil
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return schema.ChannelEvent{}, schema.NewErrorf(schema.ErrCodeTransport, "event channel read: %s", err).WithCause(err)
	}
	return schema.ChannelEvent{}, schema.NewError(schema.ErrCodeTransport, "event channel closed by server")
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
