package service

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ai-voice-chat/backend/ai"
	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/prompt"
	"ai-voice-chat/backend/pkg/errors"
	"ai-voice-chat/backend/pkg/logger"
	"ai-voice-chat/backend/pkg/observability"
	"ai-voice-chat/backend/pkg/resilience"
)

// Generator produces a reply for an assembled prompt
type Generator interface {
	Generate(ctx context.Context, turns []models.Turn, params models.SamplingParams) (string, error)
}

// configurable is implemented by collaborators that can run without credentials
type configurable interface {
	Configured() bool
}

// Reasons a reply was substituted
const (
	FallbackNone        = ""
	FallbackUnavailable = "unavailable"
	FallbackFailure     = "failure"
	FallbackEmpty       = "empty"
)

// Step names, used as span names
const (
	StepStoreUserMessage = "store-user-message"
	StepGetContext       = "get-context"
	StepGenerate         = "generate-ai-response"
	StepStoreAIMessage   = "store-ai-message"
)

// Fallbacks are the canned replies used when generation cannot produce one
type Fallbacks struct {
	// Unavailable keeps the conversation going while the model service is out
	Unavailable []string
	Failure     []string
	Empty       []string
}

// DefaultFallbacks returns the built-in reply tables
func DefaultFallbacks() Fallbacks {
	return Fallbacks{
		Unavailable: []string{
			"That's really interesting! Tell me more about that.",
			"I totally get what you mean. It's fascinating how that works!",
			"Oh wow, I hadn't thought about it that way before. Thanks for sharing!",
			"That sounds pretty cool! How did you get into that?",
			"I love hearing about stuff like this. What's been the most surprising part?",
			"That's awesome! I'm always excited to learn new things from people.",
			"I hear you! That's pretty cool stuff.",
			"Nice! I'm always down to chat about whatever's on your mind.",
			"Totally! What's been your experience with that?",
		},
		Failure: []string{
			"Oops! Something went wrong on my end. Mind giving that another shot?",
		},
		Empty: []string{
			"Hey! I had a bit of trouble processing that. Can you try again?",
		},
	}
}

// Reply is the outcome of one handled message
type Reply struct {
	SessionID string `json:"sessionId"`
	Response  string `json:"response"`
	Fallback  string `json:"fallback,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// OrchestratorConfig holds the collaborators of an Orchestrator
type OrchestratorConfig struct {
	Messages  *MessageStore
	Contexts  *ContextStore
	Builder   *prompt.Builder
	Generator Generator
	Breaker   *resilience.CircuitBreaker
	Params    models.SamplingParams
	Fallbacks Fallbacks
	Metrics   *observability.Metrics
	Logger    *logger.Logger
}

// Orchestrator runs the per-message conversation procedure
type Orchestrator struct {
	messages  *MessageStore
	contexts  *ContextStore
	builder   *prompt.Builder
	generator Generator
	breaker   *resilience.CircuitBreaker
	params    models.SamplingParams
	fallbacks Fallbacks
	metrics   *observability.Metrics
	log       *logger.Logger
	tracer    trace.Tracer
	pick      func(n int) int
}

// NewOrchestrator creates an orchestrator. Zero-valued optional fields get defaults.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Builder == nil {
		cfg.Builder = prompt.NewBuilder(nil)
	}
	if cfg.Params == (models.SamplingParams{}) {
		cfg.Params = models.DefaultSamplingParams()
	}
	if len(cfg.Fallbacks.Unavailable) == 0 && len(cfg.Fallbacks.Failure) == 0 && len(cfg.Fallbacks.Empty) == 0 {
		cfg.Fallbacks = DefaultFallbacks()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobal()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("generation"), cfg.Logger)
	}

	return &Orchestrator{
		messages:  cfg.Messages,
		contexts:  cfg.Contexts,
		builder:   cfg.Builder,
		generator: cfg.Generator,
		breaker:   cfg.Breaker,
		params:    cfg.Params,
		fallbacks: cfg.Fallbacks,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		tracer:    otel.Tracer(observability.InstrumentationName),
		pick:      rand.IntN,
	}
}

// HandleMessage stores text as the user's turn, generates a reply and stores it.
// An empty sessionID starts a new session.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, errors.InvalidInput("Message is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx = logger.ContextWithSessionID(ctx, sessionID)
	ctx, span := o.tracer.Start(ctx, "chat.handle-message",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	log := o.log.WithContext(ctx)
	o.metrics.MessageHandled(ctx)

	var userMsg models.Message
	err := o.step(ctx, StepStoreUserMessage, func(ctx context.Context) error {
		var err error
		userMsg, err = o.messages.Append(ctx, sessionID, models.Message{Role: models.RoleUser, Content: text})
		return err
	})
	if err != nil {
		return Reply{}, o.fail(ctx, span, StepStoreUserMessage, err)
	}

	var (
		record  models.ContextRecord
		history []models.Message
	)
	err = o.step(ctx, StepGetContext, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			record, err = o.contexts.Get(gctx, sessionID)
			return err
		})
		g.Go(func() error {
			var err error
			history, err = o.messages.List(gctx, sessionID)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return Reply{}, o.fail(ctx, span, StepGetContext, err)
	}

	turns := o.builder.Assemble(record, withoutTurn(history, userMsg), text)

	var reply, reason string
	_ = o.step(ctx, StepGenerate, func(ctx context.Context) error {
		reply, reason = o.generate(ctx, turns, log)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("fallback", reason))
		return nil
	})

	var aiMsg models.Message
	err = o.step(ctx, StepStoreAIMessage, func(ctx context.Context) error {
		var err error
		aiMsg, err = o.messages.Append(ctx, sessionID, models.Message{Role: models.RoleAssistant, Content: reply})
		return err
	})
	if err != nil {
		return Reply{}, o.fail(ctx, span, StepStoreAIMessage, err)
	}

	log.Info("Message handled",
		"history_turns", len(turns)-2,
		"fallback", reason,
	)

	return Reply{
		SessionID: sessionID,
		Response:  reply,
		Fallback:  reason,
		Timestamp: aiMsg.Timestamp,
	}, nil
}

// generate never fails. Errors are logged and replaced with a fallback.
func (o *Orchestrator) generate(ctx context.Context, turns []models.Turn, log *logger.Logger) (string, string) {
	if o.generator == nil {
		return o.fallback(ctx, FallbackUnavailable), FallbackUnavailable
	}
	if c, ok := o.generator.(configurable); ok && !c.Configured() {
		return o.fallback(ctx, FallbackUnavailable), FallbackUnavailable
	}

	start := time.Now()
	var reply string
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = o.generator.Generate(ctx, turns, o.params)
		return err
	})
	o.metrics.GenerationTook(ctx, time.Since(start))

	switch {
	case stderrors.Is(err, ai.ErrNotConfigured), stderrors.Is(err, resilience.ErrCircuitOpen):
		log.Warn("Generation unavailable, using filler reply", "error", err.Error())
		return o.fallback(ctx, FallbackUnavailable), FallbackUnavailable
	case err != nil:
		log.LogError(err, "Generation failed, using fallback reply")
		return o.fallback(ctx, FallbackFailure), FallbackFailure
	case strings.TrimSpace(reply) == "":
		log.Warn("Generation returned an empty reply")
		return o.fallback(ctx, FallbackEmpty), FallbackEmpty
	}
	return reply, FallbackNone
}

func (o *Orchestrator) fallback(ctx context.Context, reason string) string {
	o.metrics.FallbackUsed(ctx, reason)

	var table []string
	switch reason {
	case FallbackUnavailable:
		table = o.fallbacks.Unavailable
	case FallbackEmpty:
		table = o.fallbacks.Empty
	default:
		table = o.fallbacks.Failure
	}
	if len(table) == 0 {
		table = DefaultFallbacks().Failure
	}
	return table[o.pick(len(table))]
}

// step runs fn inside a span named after the step
func (o *Orchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, step string, err error) error {
	span.SetStatus(codes.Error, step)
	if errors.Is(err, errors.ErrStorageFailure) {
		o.metrics.StorageFailed(ctx, step)
	}
	o.log.WithContext(ctx).LogError(err, "Message handling failed", "step", step)
	return err
}

// withoutTurn drops the last occurrence of msg, so a freshly stored user turn
// is not repeated before the final user entry of the prompt.
func withoutTurn(history []models.Message, msg models.Message) []models.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] == msg {
			out := make([]models.Message, 0, len(history)-1)
			out = append(out, history[:i]...)
			return append(out, history[i+1:]...)
		}
	}
	return history
}
