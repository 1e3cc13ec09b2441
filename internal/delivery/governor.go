package delivery

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/vivoly/sofia/internal/observability"
	"github.com/vivoly/sofia/internal/transport"
)

// Delivery defaults matching a human-paced WhatsApp account.
const (
	DefaultTickInterval  = 5 * time.Second
	DefaultMaxPerHour    = 50
	DefaultMinDelay      = 3 * time.Second
	DefaultMaxDelay      = 8 * time.Second
	DefaultTypingDelay   = 2 * time.Second
	DefaultWorkStartHour = 8
	DefaultWorkEndHour   = 22
	DefaultMaxAttempts   = 3

	// hourlyWindow is the fixed accounting window for the per-hour cap.
	// The window rolls on its own schedule, not relative to sends.
	hourlyWindow = time.Hour
)

// Transport is the subset of the session manager the governor needs.
type Transport interface {
	State() transport.State
	SendText(ctx context.Context, phone, body string) error
	SimulateComposing(ctx context.Context, phone string) error
}

// GovernorConfig holds construction parameters for Governor.
type GovernorConfig struct {
	Transport Transport

	// TickInterval is how often the governor wakes to consider sending.
	// At most one envelope is delivered per tick.
	TickInterval time.Duration

	// MaxPerHour caps sends per fixed hourly window.
	MaxPerHour int

	// MinDelay and MaxDelay bound the randomized pause before each send.
	MinDelay time.Duration
	MaxDelay time.Duration

	// TypingDelay is how long the typing indicator shows before the send.
	TypingDelay time.Duration

	// WorkStartHour and WorkEndHour bound the local hours during which
	// sends happen. Messages queued outside the window wait inside it.
	WorkStartHour int
	WorkEndHour   int

	// MaxAttempts is the per-envelope attempt cap before dropping.
	MaxAttempts int

	// OnDelivered fires after a successful send.
	OnDelivered func(env *Envelope)

	// OnDropped fires when an envelope exhausts its attempts.
	OnDropped func(env *Envelope, err error)

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Stats is a point-in-time snapshot of the governor. Ready reflects the
// transport connection only; it stays true outside work hours even though no
// delivery happens then.
type Stats struct {
	Ready             bool      `json:"ready"`
	QueueDepth        int       `json:"queue_depth"`
	SentThisHour      int       `json:"sent_this_hour"`
	MaxPerHour        int       `json:"max_per_hour"`
	CapacityRemaining int       `json:"capacity_remaining"`
	EstimatedWait     string    `json:"estimated_wait"`
	WindowResetAt     time.Time `json:"window_reset_at"`
	WithinHours       bool      `json:"within_work_hours"`
}

// Governor drains the outbound queue at a human pace. One goroutine owns
// the tick loop; all counters are mutex-guarded so Stats and Enqueue can be
// called from anywhere.
type Governor struct {
	cfg       GovernorConfig
	queue     *Queue
	transport Transport
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu           sync.Mutex
	sentThisHour int
	windowStart  time.Time
	lastSentAt   time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Injected for tests.
	now       func() time.Time
	pickDelay func() time.Duration
}

// NewGovernor creates a governor. Start must be called to begin draining.
func NewGovernor(cfg GovernorConfig) *Governor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = DefaultMaxPerHour
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.TypingDelay <= 0 {
		cfg.TypingDelay = DefaultTypingDelay
	}
	if cfg.WorkEndHour <= 0 {
		cfg.WorkStartHour = DefaultWorkStartHour
		cfg.WorkEndHour = DefaultWorkEndHour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	g := &Governor{
		cfg:       cfg,
		queue:     NewQueue(),
		transport: cfg.Transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	g.windowStart = g.now()
	g.pickDelay = func() time.Duration {
		spread := cfg.MaxDelay - cfg.MinDelay
		if spread <= 0 {
			return cfg.MinDelay
		}
		return cfg.MinDelay + time.Duration(rand.Int63n(int64(spread)))
	}
	return g
}

// Enqueue adds an envelope to the queue. High priority inserts at the head;
// pacing gates still apply to every send.
func (g *Governor) Enqueue(env *Envelope) {
	g.queue.Push(env)
	g.observeDepth()
	g.logger.Debug("envelope queued",
		"id", env.ID,
		"destination", env.Destination,
		"priority", env.Priority.String(),
		"depth", g.queue.Len())
}

// Start launches the tick loop. It returns immediately.
func (g *Governor) Start(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.cfg.TickInterval)
		defer ticker.Stop()

		g.logger.Info("delivery governor started",
			"tick", g.cfg.TickInterval,
			"max_per_hour", g.cfg.MaxPerHour,
			"work_hours", g.cfg.WorkEndHour-g.cfg.WorkStartHour)

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopCh:
				return
			case <-ticker.C:
				g.tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop. Queued envelopes stay in memory and are lost on
// process exit.
func (g *Governor) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

// Stats returns a snapshot of queue depth and pacing counters.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	// The window also rolls here so an idle hour (nothing to send, or the
	// tick bailing early) cannot leave a stale counter in the snapshot.
	g.rollWindowLocked(g.now())
	depth := g.queue.Len()
	remaining := g.cfg.MaxPerHour - g.sentThisHour
	if remaining < 0 {
		remaining = 0
	}
	// Average spacing per slot, ignoring work-hour and cap stalls.
	perSlot := (g.cfg.MinDelay+g.cfg.MaxDelay)/2 + g.cfg.TypingDelay
	return Stats{
		Ready:             g.transport.State() == transport.StateReady,
		QueueDepth:        depth,
		SentThisHour:      g.sentThisHour,
		MaxPerHour:        g.cfg.MaxPerHour,
		CapacityRemaining: remaining,
		EstimatedWait:     (time.Duration(depth) * perSlot).String(),
		WindowResetAt:     g.windowStart.Add(hourlyWindow),
		WithinHours:       g.withinWorkHours(g.now()),
	}
}

// tick runs one delivery cycle: check every gate, then deliver at most one
// envelope from the head of the queue.
func (g *Governor) tick(ctx context.Context) {
	if g.queue.Len() == 0 {
		return
	}
	if g.transport.State() != transport.StateReady {
		g.logger.Debug("delivery paused, transport not ready",
			"state", g.transport.State().String())
		return
	}

	now := g.now()
	if !g.withinWorkHours(now) {
		g.logger.Debug("delivery paused, outside work hours", "hour", now.Hour())
		return
	}

	g.mu.Lock()
	g.rollWindowLocked(now)
	if g.sentThisHour >= g.cfg.MaxPerHour {
		g.mu.Unlock()
		g.logger.Warn("hourly send cap reached, deferring",
			"sent", g.cfg.MaxPerHour,
			"window_reset", g.windowStart.Add(hourlyWindow))
		return
	}
	// Humanized spacing: a fresh random delay each tick, satisfied by
	// elapsed wall time rather than blocking the loop.
	required := g.pickDelay()
	if !g.lastSentAt.IsZero() && now.Sub(g.lastSentAt) < required {
		g.mu.Unlock()
		g.logger.Debug("delivery paused, pacing delay not elapsed",
			"required", required,
			"elapsed", now.Sub(g.lastSentAt))
		return
	}
	g.mu.Unlock()

	env := g.queue.Pop()
	if env == nil {
		return
	}

	// The typing indicator is cosmetic; a failure here never blocks the
	// send.
	if err := g.transport.SimulateComposing(ctx, env.Destination); err != nil {
		g.logger.Debug("typing indicator failed", "error", err)
	}
	if !g.sleep(ctx, g.cfg.TypingDelay) {
		g.queue.pushHead(env)
		return
	}

	env.Attempts++
	if err := g.transport.SendText(ctx, env.Destination, env.Body); err != nil {
		g.handleFailure(env, err)
		g.observeDepth()
		return
	}

	g.mu.Lock()
	g.sentThisHour++
	sent := g.sentThisHour
	g.lastSentAt = g.now()
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.DeliveryCounter.WithLabelValues("sent").Inc()
		g.metrics.SentThisHour.Set(float64(sent))
	}
	g.observeDepth()

	g.logger.Info("message delivered",
		"id", env.ID,
		"destination", env.Destination,
		"attempt", env.Attempts,
		"sent_this_hour", sent)

	if g.cfg.OnDelivered != nil {
		g.cfg.OnDelivered(env)
	}
}

func (g *Governor) handleFailure(env *Envelope, err error) {
	if env.Attempts < g.cfg.MaxAttempts {
		// Retries join the tail so one failing recipient cannot hold the
		// head slot.
		g.queue.PushTail(env)
		if g.metrics != nil {
			g.metrics.DeliveryCounter.WithLabelValues("retried").Inc()
		}
		g.logger.Warn("delivery failed, requeued",
			"id", env.ID,
			"destination", env.Destination,
			"attempt", env.Attempts,
			"error", err)
		return
	}

	if g.metrics != nil {
		g.metrics.DeliveryCounter.WithLabelValues("dropped").Inc()
	}
	g.logger.Error("delivery failed permanently, dropping",
		"id", env.ID,
		"destination", env.Destination,
		"attempts", env.Attempts,
		"error", err)

	if g.cfg.OnDropped != nil {
		g.cfg.OnDropped(env, err)
	}
}

// rollWindowLocked advances the fixed hourly window. Rolls happen in whole
// window steps so the boundary never drifts with send timing.
func (g *Governor) rollWindowLocked(now time.Time) {
	for now.Sub(g.windowStart) >= hourlyWindow {
		g.windowStart = g.windowStart.Add(hourlyWindow)
		g.sentThisHour = 0
		if g.metrics != nil {
			g.metrics.SentThisHour.Set(0)
		}
	}
}

func (g *Governor) withinWorkHours(now time.Time) bool {
	h := now.Hour()
	return h >= g.cfg.WorkStartHour && h < g.cfg.WorkEndHour
}

// sleep waits for d unless the context or governor stops first. Returns
// false when interrupted.
func (g *Governor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-g.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (g *Governor) observeDepth() {
	if g.metrics != nil {
		g.metrics.QueueDepth.Set(float64(g.queue.Len()))
	}
}
