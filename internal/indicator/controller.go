// Package indicator drives the usage pipeline on a timer and pushes the
// rendered result to a display.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lordvcs/ccusage_indicator/internal/logger"
	"github.com/lordvcs/ccusage_indicator/internal/usage"
)

const highUsagePercent = 90

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrStopped        = errors.New("controller stopped")
	ErrNoPipeline     = errors.New("controller has no pipeline")
	ErrBadInterval    = errors.New("refresh interval must be positive")
)

// Pipeline runs one refresh. Fetch must render every failure into the
// snapshot instead of returning early.
type Pipeline interface {
	Fetch(ctx context.Context) usage.Snapshot
}

type Notifier interface {
	Notify(title, body string)
}

// Settings is everything a reconfiguration can change.
type Settings struct {
	Interval      time.Duration
	Pipeline      Pipeline
	Notifications bool
}

func (s Settings) validate() error {
	if s.Pipeline == nil {
		return ErrNoPipeline
	}
	if s.Interval <= 0 {
		return ErrBadInterval
	}
	return nil
}

// Controller owns the refresh timer and the in-flight guard. All guard and
// display state lives on the loop goroutine; the exported methods only send
// it requests.
type Controller struct {
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	settings Settings
	started  bool

	trigger    chan struct{}
	reconfig   chan Settings
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	cancelWork context.CancelFunc
}

func New(settings Settings, notifier Notifier, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		notifier: notifier,
		logger:   log,
		now:      time.Now,
		settings: settings,
		trigger:  make(chan struct{}),
		reconfig: make(chan Settings),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start shows the loading placeholder, refreshes immediately and then on
// every interval until Stop.
func (c *Controller) Start(display Display) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stop:
		return ErrStopped
	default:
	}
	if c.started {
		return ErrAlreadyStarted
	}
	if err := c.settings.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(logger.ContextWithLogger(context.Background(), c.logger))
	c.cancelWork = cancel
	c.started = true
	go c.loop(ctx, display, c.settings)
	return nil
}

// Trigger requests a refresh now. It is dropped when a refresh is already in
// flight and ignored before Start or after Stop.
func (c *Controller) Trigger() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	select {
	case c.trigger <- struct{}{}:
	case <-c.stop:
	}
}

// Reconfigure swaps the pipeline and replaces the timer. It never refreshes
// by itself; the next tick uses the new settings.
func (c *Controller) Reconfigure(settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if !c.started {
		c.settings = settings
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	select {
	case c.reconfig <- settings:
		return nil
	case <-c.stop:
		return ErrStopped
	}
}

// Stop cancels the timer and any running command. A pipeline result that
// arrives afterwards is discarded. Stop is safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		cancel := c.cancelWork
		close(c.stop)
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-c.done
		}
	})
}

func (c *Controller) loop(ctx context.Context, display Display, settings Settings) {
	defer close(c.done)

	ticker := time.NewTicker(settings.Interval)
	defer ticker.Stop()

	var (
		inFlight bool
		last     *usage.Snapshot
		nextAt   = c.now().Add(settings.Interval)
		results  = make(chan usage.Snapshot)
		status   = usage.StatusLoading
	)

	show := func(v View) {
		v.NextRefreshAt = nextAt
		v.UpdatedAt = c.now()
		display.Update(v)
	}

	begin := func(reason string) {
		if inFlight {
			c.logger.Debug("refresh skipped; previous refresh still running", zap.String("reason", reason))
			return
		}
		inFlight = true
		show(View{
			State:    StateRefreshing,
			Label:    usage.LabelRefreshing,
			Status:   status,
			Snapshot: last,
		})

		pipeline := settings.Pipeline
		go func() {
			snap := pipeline.Fetch(ctx)
			select {
			case results <- snap:
			case <-c.stop:
			}
		}()
	}

	show(View{State: StateLoading, Label: usage.LabelLoading, Status: usage.StatusLoading})
	begin("start")

	for {
		select {
		case <-c.stop:
			return

		case <-ticker.C:
			nextAt = c.now().Add(settings.Interval)
			begin("timer")

		case <-c.trigger:
			begin("manual")

		case next := <-c.reconfig:
			ticker.Reset(next.Interval)
			nextAt = c.now().Add(next.Interval)
			settings = next
			c.logger.Info("refresh settings updated", zap.Duration("interval", next.Interval))

		case snap := <-results:
			inFlight = false
			if settings.Notifications {
				c.notifyTransitions(last, &snap)
			}
			last = &snap
			status = snap.Status
			show(View{
				State:    StateReady,
				Label:    snap.Label,
				Status:   snap.Status,
				Snapshot: last,
			})
		}
	}
}

// notifyTransitions fires only when a threshold is crossed between two
// consecutive snapshots, never on every refresh.
func (c *Controller) notifyTransitions(prev, next *usage.Snapshot) {
	if c.notifier == nil || prev == nil {
		return
	}
	if prev.Outcome == usage.OutcomeActive && next.Outcome == usage.OutcomeEnded {
		c.notifier.Notify("Claude Code session ended", usage.StatusEnded)
	}
	prevPct := prev.Metrics.PercentageConsumed
	nextPct := next.Metrics.PercentageConsumed
	if prevPct != nil && nextPct != nil && *prevPct < highUsagePercent && *nextPct >= highUsagePercent {
		c.notifier.Notify("Claude Code usage high", fmt.Sprintf("%d%% of the current session used", *nextPct))
	}
}
