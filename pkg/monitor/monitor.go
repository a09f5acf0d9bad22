// Package monitor tracks one executing run over its live event channel.
// Each Monitor is single-use: it walks the CONNECTING, LIVE,
// RECONNECTING, CLOSED state machine, normalizes channel events into
// typed updates, and recovers from at most one transport failure through
// the injected token-refresh hook. A CLOSED monitor is never reused.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/internal/logging"
	"github.com/hexlane/reconchain/pkg/state"
	"github.com/hexlane/reconchain/pkg/schema"
)

// State is the monitor's connection state.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateLive         State = "LIVE"
	StateReconnecting State = "RECONNECTING"
	StateClosed       State = "CLOSED"
)

// legalTransitions is the full transition table. CLOSED is terminal;
// Stop may force it from any state.
var legalTransitions = map[State][]State{
	StateConnecting:   {StateLive, StateClosed},
	StateLive:         {StateReconnecting, StateClosed},
	StateReconnecting: {StateConnecting, StateClosed},
	StateClosed:       {},
}

// StepUpdate is a normalized step-level update.
type StepUpdate struct {
	Index  int
	Status schema.StepStatus
}

// RunUpdate is a normalized run-level update.
type RunUpdate struct {
	Status   schema.RunStatus
	Progress *float64
}

// Update is one normalized delivery on the updates channel. Exactly one
// field is set.
type Update struct {
	Snapshot *schema.Run
	Step     *StepUpdate
	Run      *RunUpdate
	Err      error
}

// Config configures a Monitor.
type Config struct {
	RunID     string
	Transport Transport
	// Refresher is invoked at most once, on the first transport failure.
	// Nil means transport failures close the monitor immediately.
	Refresher api.TokenRefresher
	// States, when non-nil, receives auth_required and run_status
	// notifications alongside the updates channel.
	States *state.Store
	Logger *slog.Logger
}

// Monitor watches a single run. Construct with New, drive with Start,
// consume Updates until closed, release with Stop.
type Monitor struct {
	runID     string
	transport Transport
	refresher api.TokenRefresher
	states    *state.Store
	logger    *slog.Logger

	mu        sync.Mutex
	current   State
	refreshed bool

	updates  chan Update
	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a Monitor in CONNECTING state.
func New(cfg Config) (*Monitor, error) {
	if cfg.RunID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "monitor requires a run id")
	}
	if cfg.Transport == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "monitor requires a transport")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = slog.New(logging.NewCorrelationHandler(logger.Handler()))
	return &Monitor{
		runID:     cfg.RunID,
		transport: cfg.Transport,
		refresher: cfg.Refresher,
		states:    cfg.States,
		logger:    logger,
		current:   StateConnecting,
		updates:   make(chan Update, 64),
		done:      make(chan struct{}),
	}, nil
}

// Start attaches to the event channel and begins delivering updates.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Updates is the normalized event feed. Closed when the monitor closes.
func (m *Monitor) Updates() <-chan Update { return m.updates }

// Done is closed when the monitor reaches CLOSED.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop transitions to CLOSED from any state and releases the transport.
// Idempotent: safe to call at any time, any number of times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.current = StateClosed
		m.mu.Unlock()
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// transition moves to the target state. It returns false when the
// monitor is already CLOSED (a racing Stop) and panics on a transition
// the table forbids, which indicates a defect in the monitor itself.
func (m *Monitor) transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == StateClosed {
		return false
	}
	if !transitionLegal(m.current, to) {
		panic(fmt.Sprintf("monitor: illegal transition %s -> %s", m.current, to))
	}
	m.current = to
	return true
}

func transitionLegal(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run is the monitor's single goroutine: open, consume, recover once.
func (m *Monitor) run(ctx context.Context) {
	defer m.shutdown()
	ctx = logging.WithRunID(ctx, m.runID)

	for {
		stream, err := m.transport.Open(ctx, m.runID)
		if err != nil {
			m.deliver(ctx, Update{Err: err})
			if schema.IsCode(err, schema.ErrCodeAuthRequired) {
				m.signalAuthRequired()
			}
			return
		}
		if !m.transition(StateLive) {
			stream.Close()
			return
		}
		m.logger.DebugContext(ctx, "event channel live")

		terminal, consumeErr := m.consume(ctx, stream)
		stream.Close()
		if terminal || consumeErr == nil {
			return
		}

		if !m.transition(StateReconnecting) {
			return
		}
		if !m.recover(ctx, consumeErr) {
			return
		}
		if !m.transition(StateConnecting) {
			return
		}
		m.logger.InfoContext(ctx, "event channel reattaching after refresh")
	}
}

// consume delivers normalized updates until a terminal status, a
// transport error, or cancellation. terminal=true means the run is over
// and the monitor must close without reconnecting.
func (m *Monitor) consume(ctx context.Context, stream Stream) (terminal bool, err error) {
	for {
		event, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return false, nil // Stop or caller cancellation
			}
			return false, err
		}

		switch event.Name {
		case schema.EventSnapshot:
			var run schema.Run
			if jsonErr := json.Unmarshal(event.Data, &run); jsonErr != nil {
				m.logger.WarnContext(ctx, "dropping malformed snapshot event", "error", jsonErr)
				continue
			}
			m.publishRunStatus(run.Status)
			m.deliver(ctx, Update{Snapshot: &run})
			if run.Status.Terminal() {
				m.logger.InfoContext(ctx, "run already terminal on attach", "status", run.Status)
				return true, nil
			}
		case schema.EventUpdate:
			var upd schema.UpdateEvent
			if jsonErr := json.Unmarshal(event.Data, &upd); jsonErr != nil {
				m.logger.WarnContext(ctx, "dropping malformed update event", "error", jsonErr)
				continue
			}
			switch upd.Type {
			case schema.UpdateTypeStep:
				m.deliver(ctx, Update{Step: &StepUpdate{Index: upd.StepIndex, Status: upd.StepStatusValue()}})
			case schema.UpdateTypeRun:
				status := upd.RunStatusValue()
				m.publishRunStatus(status)
				m.deliver(ctx, Update{Run: &RunUpdate{Status: status, Progress: upd.ProgressPct}})
				if status.Terminal() {
					m.logger.InfoContext(ctx, "run reached terminal status", "status", status)
					return true, nil
				}
			default:
				m.logger.DebugContext(ctx, "ignoring update with unknown type", "type", upd.Type)
			}
		default:
			m.logger.DebugContext(ctx, "ignoring unknown event", "event", event.Name)
		}
	}
}

// recover spends the single reconnect budget. It returns true when the
// refresh hook succeeded and a fresh attach should be attempted.
func (m *Monitor) recover(ctx context.Context, cause error) bool {
	m.mu.Lock()
	spent := m.refreshed
	m.refreshed = true
	m.mu.Unlock()

	if spent || m.refresher == nil {
		m.deliver(ctx, Update{Err: cause})
		return false
	}

	m.logger.InfoContext(ctx, "transport failure, attempting token refresh", "error", cause)
	if err := m.refresher.Refresh(ctx); err != nil {
		authErr := schema.NewError(schema.ErrCodeAuthRequired, "session refresh failed").WithCause(err)
		m.deliver(ctx, Update{Err: authErr})
		m.signalAuthRequired()
		return false
	}
	return true
}

// shutdown finalizes the monitor: CLOSED state, channels released.
func (m *Monitor) shutdown() {
	m.mu.Lock()
	m.current = StateClosed
	m.mu.Unlock()
	close(m.updates)
	close(m.done)
}

func (m *Monitor) deliver(ctx context.Context, u Update) {
	select {
	case m.updates <- u:
	case <-ctx.Done():
	}
}

func (m *Monitor) publishRunStatus(status schema.RunStatus) {
	if m.states != nil {
		m.states.Set(state.KeyRunStatus, status)
	}
}

func (m *Monitor) signalAuthRequired() {
	if m.states != nil {
		m.states.Set(state.KeyAuthRequired, true)
	}
}
