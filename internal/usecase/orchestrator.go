package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/domain"
	"github.com/vitos/crypto_trade_bot/internal/metrics"
	"go.uber.org/zap"
)

// BotState is the orchestrator lifecycle state.
type BotState string

const (
	StateStopped  BotState = "stopped"
	StateStarting BotState = "starting"
	StateRunning  BotState = "running"
	StateStopping BotState = "stopping"
)

// Cycle is one supervised periodic task. RunOnce executes a single
// iteration; the orchestrator owns the loop, the interval sleep and the
// failure handling.
type Cycle interface {
	Name() string
	Interval() time.Duration
	RunOnce(ctx context.Context) error
}

// OrchestratorConfig holds supervision parameters.
type OrchestratorConfig struct {
	// RestartBackoff is how long a failed cycle waits before its next
	// attempt.
	RestartBackoff time.Duration
	// SleepSlice chunks interval sleeps so a stop request is observed
	// within one slice.
	SleepSlice time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RestartBackoff: 5 * time.Minute,
		SleepSlice:     time.Minute,
	}
}

// OrchestratorStatus is the snapshot reported on the control surface.
type OrchestratorStatus struct {
	State         BotState  `json:"state"`
	OpenPositions int       `json:"open_positions"`
	CycleNumber   int64     `json:"cycle_number"`
	DailyLossUSD  float64   `json:"daily_loss_usd"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// Orchestrator owns the bot lifecycle. It supervises the scan, monitor
// and reconcile cycles as independent goroutines sharing the ledger; a
// failure in one cycle is logged and that cycle restarted after a
// backoff, never taking the process down.
type Orchestrator struct {
	cfg       OrchestratorConfig
	exchange  domain.Exchange
	status    domain.StatusRepository
	ledger    *PositionLedger
	scan      *ScanCycle
	cycles    []Cycle
	dailyLoss *DailyLossTracker
	logger    *zap.Logger

	mu        sync.Mutex
	state     BotState
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	exchange domain.Exchange,
	status domain.StatusRepository,
	ledger *PositionLedger,
	scan *ScanCycle,
	monitor *MonitorCycle,
	reconcile *ReconcileCycle,
	dailyLoss *DailyLossTracker,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		exchange:  exchange,
		status:    status,
		ledger:    ledger,
		scan:      scan,
		cycles:    []Cycle{scan, monitor, reconcile},
		dailyLoss: dailyLoss,
		logger:    logger,
		state:     StateStopped,
	}
}

// Start verifies exchange connectivity and launches the cycles. Refuses
// to enter Running when the exchange is unreachable.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateStopped {
		return fmt.Errorf("cannot start from state %s", o.state)
	}
	o.state = StateStarting
	o.logger.Info("Starting trading bot")

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	ok := o.exchange.TestConnectivity(checkCtx)
	cancel()
	if !ok {
		o.state = StateStopped
		o.setStatus(ctx, "error", domain.ErrExchangeUnreachable.Error())
		return domain.ErrExchangeUnreachable
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	o.cancel = runCancel
	o.startedAt = time.Now().UTC()

	for _, c := range o.cycles {
		o.wg.Add(1)
		go o.supervise(runCtx, c)
	}

	o.state = StateRunning
	o.setStatus(ctx, "running", "")
	o.logger.Info("Trading bot started", zap.Int("cycles", len(o.cycles)))
	return nil
}

// Stop signals the cycles to finish their current iteration and waits
// for them. In-flight exchange orders are never cancelled mid-flight.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return fmt.Errorf("cannot stop from state %s", o.state)
	}
	o.state = StateStopping
	cancel := o.cancel
	o.mu.Unlock()

	o.logger.Info("Stopping trading bot")
	cancel()
	o.wg.Wait()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()

	o.setStatus(ctx, "stopped", "")
	o.logger.Info("Trading bot stopped")
	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() BotState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status reports the control-surface snapshot.
func (o *Orchestrator) Status() OrchestratorStatus {
	o.mu.Lock()
	state := o.state
	startedAt := o.startedAt
	o.mu.Unlock()

	st := OrchestratorStatus{
		State:         state,
		OpenPositions: o.ledger.Len(),
		CycleNumber:   o.scan.CycleNumber(),
		DailyLossUSD:  o.dailyLoss.Current(),
	}
	if state == StateRunning {
		st.StartedAt = startedAt
	}
	return st
}

// supervise runs one cycle until the run context is cancelled. Panics
// and errors are caught at this boundary: the failure is logged, the
// status record updated, and the cycle retried after the backoff.
func (o *Orchestrator) supervise(ctx context.Context, c Cycle) {
	defer o.wg.Done()

	for {
		err := o.runProtected(ctx, c)
		if ctx.Err() != nil {
			return
		}

		wait := c.Interval()
		if err != nil {
			metrics.CycleErrorsTotal.WithLabelValues(c.Name()).Inc()
			o.logger.Error("Cycle failed, restarting after backoff",
				zap.String("cycle", c.Name()),
				zap.Duration("backoff", o.cfg.RestartBackoff),
				zap.Error(err))
			o.setStatus(ctx, "error", fmt.Sprintf("%s: %v", c.Name(), err))
			wait = o.cfg.RestartBackoff
		}

		if !o.sleep(ctx, wait) {
			return
		}
	}
}

func (o *Orchestrator) runProtected(ctx context.Context, c Cycle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return c.RunOnce(ctx)
}

// sleep waits for d in slices so cancellation is observed promptly.
// Returns false when the context was cancelled.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	slice := o.cfg.SleepSlice
	if slice <= 0 {
		slice = time.Minute
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > slice {
			remaining = slice
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, status, lastError string) {
	if err := o.status.UpdateBotStatus(ctx, &domain.BotStatus{
		Status:      status,
		CycleNumber: int(o.scan.CycleNumber()),
		LastError:   lastError,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		o.logger.Error("Failed to update bot status", zap.Error(err))
	}
}
