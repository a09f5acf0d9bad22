package runs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/monitor"
	"github.com/hexlane/reconchain/pkg/state"
	"github.com/hexlane/reconchain/pkg/schema"
)

// DetailController backs the run detail view. It owns at most one live
// monitor: opening a detail tears down the previous monitor before
// attaching a new one, so concurrent channels for the same view never
// leak. Closing the controller only stops local observation; the
// server-side run continues independently.
type DetailController struct {
	client    *Client
	transport monitor.Transport
	refresher api.TokenRefresher
	states    *state.Store
	logger    *slog.Logger

	mu      sync.Mutex
	current *monitor.Monitor
}

// NewDetailController creates a DetailController. refresher and states
// are passed through to each monitor it constructs.
func NewDetailController(client *Client, transport monitor.Transport, refresher api.TokenRefresher, states *state.Store, logger *slog.Logger) *DetailController {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailController{
		client:    client,
		transport: transport,
		refresher: refresher,
		states:    states,
		logger:    logger,
	}
}

// Open fetches the run and attaches a fresh monitor to its event
// channel. Any previously open detail is torn down first.
func (d *DetailController) Open(ctx context.Context, runID string) (*schema.Run, *monitor.Monitor, error) {
	d.teardown()

	run, err := d.client.Get(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	m, err := monitor.New(monitor.Config{
		RunID:     runID,
		Transport: d.transport,
		Refresher: d.refresher,
		States:    d.states,
		Logger:    d.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	d.current = m
	d.mu.Unlock()

	m.Start(ctx)
	return run, m, nil
}

// Active returns the currently attached monitor, nil when no detail is
// open.
func (d *DetailController) Active() *monitor.Monitor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Close stops the active monitor. Idempotent.
func (d *DetailController) Close() {
	d.teardown()
}

func (d *DetailController) teardown() {
	d.mu.Lock()
	prev := d.current
	d.current = nil
	d.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}
