// Package pipeline wires inbound messages through deduplication, contact
// lookup, reply generation, and the outbound delivery queue. One inbound
// event is processed end to end; a failure at any stage is logged and
// counted without affecting other conversations.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vivoly/sofia/internal/dedup"
	"github.com/vivoly/sofia/internal/delivery"
	"github.com/vivoly/sofia/internal/genai"
	"github.com/vivoly/sofia/internal/history"
	"github.com/vivoly/sofia/internal/observability"
	"github.com/vivoly/sofia/internal/transport"
)

// replyMaxTokens bounds generated replies. Chat answers are short; the
// persona caps them at three sentences anyway.
const replyMaxTokens = 512

// DefaultContextTurns is how many transcript lines feed generation context.
const DefaultContextTurns = 10

// Deliverer is the outbound queue surface the pipeline needs.
type Deliverer interface {
	Enqueue(env *delivery.Envelope)
	Stats() delivery.Stats
}

// Session exposes the transport state consumed by Status.
type Session interface {
	State() transport.State
	AuthArtifact() string
}

// ServiceConfig holds construction parameters for Service.
type ServiceConfig struct {
	Gate      *dedup.Gate
	Store     *history.Store
	Router    *genai.Router
	Deliverer Deliverer
	Session   Session

	// ContextTurns is how many stored transcript lines are replayed into
	// each generation request.
	ContextTurns int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Disposition reports how a manual send request was handled.
type Disposition string

const (
	// DispositionQueued means the message joined the outbound queue.
	DispositionQueued Disposition = "queued"

	// DispositionUnavailable means the transport session is not ready and
	// the message was not queued.
	DispositionUnavailable Disposition = "unavailable"
)

// Status is the composed service snapshot served by the admin gateway.
type Status struct {
	Transport TransportStatus                         `json:"transport"`
	Delivery  delivery.Stats                          `json:"delivery"`
	Usage     map[genai.ProviderName]genai.UsageStats `json:"usage"`
	StartedAt time.Time                               `json:"started_at"`
}

// TransportStatus is the connection slice of Status.
type TransportStatus struct {
	State        string `json:"state"`
	AuthArtifact string `json:"auth_artifact,omitempty"`
}

// Service orchestrates the conversational pipeline.
type Service struct {
	gate      *dedup.Gate
	store     *history.Store
	router    *genai.Router
	deliverer Deliverer
	session   Session

	contextTurns int
	startedAt    time.Time

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates the pipeline service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	return &Service{
		gate:         cfg.Gate,
		store:        cfg.Store,
		router:       cfg.Router,
		deliverer:    cfg.Deliverer,
		session:      cfg.Session,
		contextTurns: cfg.ContextTurns,
		startedAt:    time.Now(),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// HandleInbound processes one inbound message: dedup, contact resolution,
// reply generation, urgency analysis, and enqueueing of the reply. The
// returned error is for the caller's log; the pipeline has already counted
// and logged the failure.
func (s *Service) HandleInbound(ctx context.Context, msg *transport.Message) error {
	key := dedupKey(msg)
	if !s.gate.Admit(key) {
		s.count("duplicate")
		s.logger.Debug("duplicate inbound dropped", "key", key)
		return nil
	}

	contact, err := s.store.FindOrCreateContact(ctx, msg.Sender, msg.SenderName)
	if err != nil {
		return s.fail("resolve contact", msg.Sender, err)
	}

	if !contact.AutoReply {
		s.count("auto_reply_off")
		s.logger.Info("auto-reply disabled for contact, skipping",
			"phone", contact.Phone)
		return nil
	}

	if err := s.store.SaveMessage(ctx, contact.ID, history.DirectionInbound, msg.Body); err != nil {
		return s.fail("save inbound", contact.Phone, err)
	}

	recent, err := s.store.RecentMessages(ctx, contact.ID, s.contextTurns)
	if err != nil {
		return s.fail("load context", contact.Phone, err)
	}

	result, err := s.router.Generate(ctx,
		replyPrompt(contact.Name, msg.Body),
		conversationContext(recent),
		&genai.Options{MaxTokens: replyMaxTokens})
	if err != nil {
		return s.fail("generate reply", contact.Phone, err)
	}

	priority := s.classifyPriority(ctx, msg.Body)

	env := delivery.NewEnvelope(contact.Phone, result.Text, priority)
	s.deliverer.Enqueue(env)

	if err := s.store.SaveMessage(ctx, contact.ID, history.DirectionOutbound, result.Text); err != nil {
		// The reply is already queued; losing the transcript line is not
		// worth dropping it.
		s.logger.Warn("failed to save outbound transcript",
			"phone", contact.Phone, "error", err)
	}

	s.count("processed")
	s.logger.Info("inbound processed",
		"phone", contact.Phone,
		"provider", result.Provider,
		"priority", priority.String(),
		"cost", result.Cost)
	return nil
}

// classifyPriority runs the structured analysis and maps it to a queue
// priority. Analysis is best-effort: any failure falls back to normal.
func (s *Service) classifyPriority(ctx context.Context, message string) delivery.Priority {
	parsed, err := s.router.Analyze(ctx, buildAnalysisPrompt(message))
	if err != nil {
		s.logger.Warn("message analysis failed, assuming normal priority", "error", err)
		return delivery.PriorityNormal
	}
	if parsed["urgency"] == "alta" || parsed["next_action"] == "escalate" {
		return delivery.PriorityHigh
	}
	return delivery.PriorityNormal
}

// SendManual queues an operator-written message to the given phone. It goes
// through the same pacing gates as generated replies. When the transport
// session is not ready the message is rejected rather than queued, so the
// operator learns immediately instead of after the queue drains.
func (s *Service) SendManual(ctx context.Context, phone, body string) (Disposition, error) {
	if s.session.State() != transport.StateReady {
		return DispositionUnavailable, nil
	}

	contact, err := s.store.FindOrCreateContact(ctx, phone, "")
	if err != nil {
		return "", fmt.Errorf("resolve contact: %w", err)
	}

	s.deliverer.Enqueue(delivery.NewEnvelope(contact.Phone, body, delivery.PriorityNormal))

	if err := s.store.SaveMessage(ctx, contact.ID, history.DirectionOutbound, body); err != nil {
		s.logger.Warn("failed to save outbound transcript",
			"phone", contact.Phone, "error", err)
	}
	return DispositionQueued, nil
}

// Status composes the service snapshot: connection state, delivery pacing,
// and provider usage.
func (s *Service) Status() Status {
	return Status{
		Transport: TransportStatus{
			State:        s.session.State().String(),
			AuthArtifact: s.session.AuthArtifact(),
		},
		Delivery:  s.deliverer.Stats(),
		Usage:     s.router.UsageStats(),
		StartedAt: s.startedAt,
	}
}

func (s *Service) fail(stage, phone string, err error) error {
	s.count("error")
	s.logger.Error("inbound processing failed",
		"stage", stage, "phone", phone, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.InboundCounter.WithLabelValues(outcome).Inc()
	}
}

// dedupKey identifies a message by sender and second-resolution timestamp,
// which is what transports replay on reconnect.
func dedupKey(msg *transport.Message) string {
	return fmt.Sprintf("%s_%d", msg.Sender, msg.Timestamp.Unix())
}
