package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/ai"
	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/parser"
	"github.com/spigell/driver-screener/internal/prompt"
	"github.com/spigell/driver-screener/internal/requirement"
	"github.com/spigell/driver-screener/internal/utils"
)

const (
	tracerName          = "driver-screener/screening"
	defaultMaxLogLength = 200

	// kickoffMessage stands in for the candidate when the assistant speaks
	// first. It is never persisted.
	kickoffMessage = "Hello."

	leadSeparator = "\n\n"
)

// Observer receives screening events. Implementations must be safe for
// concurrent use when conversations are handled in parallel.
type Observer interface {
	ObserveEvaluation(requirementType, status string)
	ObserveFollowUpExhausted(requirementType string)
	ObserveDecision(decision string)
}

type nopObserver struct{}

func (nopObserver) ObserveEvaluation(string, string) {}
func (nopObserver) ObserveFollowUpExhausted(string)  {}
func (nopObserver) ObserveDecision(string)           {}

// Config holds the screening policy.
type Config struct {
	// Window screens only the first N requirements by priority. Zero screens all.
	Window       int
	NotMetPolicy NotMetPolicy
	// MaxFollowUps overrides the clarification budget when positive.
	MaxFollowUps int
	MaxLogLength int
}

// Deps aggregates the collaborators of the engine.
type Deps struct {
	Store     Store
	Generator ai.Generator
	Parser    *parser.Parser
	Prompts   *prompt.Builder
	Logger    *zap.Logger
	Observer  Observer
}

// Reply is what the transport sends back to the candidate.
type Reply struct {
	Text     string
	State    State
	Decision Decision
	Active   bool
	// Requirement is the requirement the reply asks about, if any.
	Requirement *ConversationRequirement
	// Outcome is the evaluation of the handled answer, if one happened.
	Outcome *Outcome
}

// Engine processes candidate messages one at a time per conversation. It
// holds no locks: callers must not handle two messages of the same
// conversation concurrently.
type Engine struct {
	cfg       Config
	store     Store
	generator ai.Generator
	parser    *parser.Parser
	prompts   *prompt.Builder
	logger    *zap.Logger
	observer  Observer
	evaluator *Evaluator
	router    Router
	tracer    trace.Tracer
	maxLogLen int
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("screening store is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("text generator is required")
	}
	if deps.Prompts == nil {
		return nil, errors.New("prompt builder is required")
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("screening window must not be negative, got %d", cfg.Window)
	}
	policy, err := ParseNotMetPolicy(string(cfg.NotMetPolicy))
	if err != nil {
		return nil, err
	}
	cfg.NotMetPolicy = policy

	log := logger.WithFields(deps.Logger)
	if deps.Parser == nil {
		deps.Parser = parser.New(log)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	controller := NewController()
	if cfg.MaxFollowUps > 0 {
		controller.MaxFollowUps = cfg.MaxFollowUps
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		generator: deps.Generator,
		parser:    deps.Parser,
		prompts:   deps.Prompts,
		logger:    log,
		observer:  deps.Observer,
		evaluator: NewEvaluator(controller, log),
		router:    Router{Policy: policy},
		tracer:    otel.Tracer(tracerName),
		maxLogLen: maxLogLen,
	}, nil
}

// Start opens a PENDING conversation and greets the candidate.
func (e *Engine) Start(ctx context.Context, conversationID string, handlers *ai.StreamHandlers) (Reply, error) {
	ctx, span := e.startSpan(ctx, "screening.start", conversationID)
	defer span.End()

	s, err := LoadSession(ctx, e.store, conversationID, e.cfg.Window)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	if s.Conversation.State != StatePending {
		return Reply{}, e.fail(span, fmt.Errorf("start %s: %w", conversationID, ErrConversationStarted))
	}

	route := Route{State: StateStart, Decision: DecisionPending, Active: true}
	if err := e.setState(ctx, s, route); err != nil {
		return Reply{}, e.fail(span, err)
	}

	instruction := e.prompts.Greeting(s.PromptJob(), s.Conversation.CandidateName)
	text, err := e.speak(ctx, s, instruction, "", handlers)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}

	logger.WithConversation(e.logger, conversationID).Info("conversation started")
	return e.reply(s, text, nil, nil), nil
}

// Handle processes one inbound candidate message end to end: it stores the
// message, evaluates the answer for the current requirement, moves the
// conversation on and returns the next assistant message. With handlers set
// the assistant message is streamed.
func (e *Engine) Handle(ctx context.Context, conversationID, text string, handlers *ai.StreamHandlers) (Reply, error) {
	ctx, span := e.startSpan(ctx, "screening.handle", conversationID)
	defer span.End()

	s, err := LoadSession(ctx, e.store, conversationID, e.cfg.Window)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	span.SetAttributes(attribute.String("conversation.state", string(s.Conversation.State)))

	if err := checkOpen(s.Conversation); err != nil {
		return Reply{}, e.fail(span, err)
	}

	msg, err := e.store.SaveMessage(ctx, Message{
		ConversationID: conversationID,
		Sender:         SenderUser,
		Content:        text,
	})
	if err != nil {
		return Reply{}, e.fail(span, fmt.Errorf("save candidate message: %w", err))
	}

	var reply Reply
	switch s.Conversation.State {
	case StateStart:
		reply, err = e.beginRequirements(ctx, s, handlers)
	case StateOnRequirements:
		reply, err = e.answerRequirement(ctx, s, msg, handlers)
	case StateOnFollowUpQuestions:
		reply, err = e.answerFollowUp(ctx, s, handlers)
	default:
		err = fmt.Errorf("unexpected conversation state %q", s.Conversation.State)
	}
	if err != nil {
		return Reply{}, e.fail(span, err)
	}

	span.SetAttributes(
		attribute.String("conversation.next_state", string(reply.State)),
		attribute.String("conversation.decision", string(reply.Decision)),
	)
	return reply, nil
}

// CompleteFollowUps ends the follow-up phase and approves the candidate.
func (e *Engine) CompleteFollowUps(ctx context.Context, conversationID string, handlers *ai.StreamHandlers) (Reply, error) {
	ctx, span := e.startSpan(ctx, "screening.complete_followups", conversationID)
	defer span.End()

	s, err := LoadSession(ctx, e.store, conversationID, e.cfg.Window)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	if err := checkOpen(s.Conversation); err != nil {
		return Reply{}, e.fail(span, err)
	}
	if s.Conversation.State != StateOnFollowUpQuestions {
		return Reply{}, e.fail(span, fmt.Errorf("complete follow-ups in state %s: %w", s.Conversation.State, ErrNotStarted))
	}

	reply, err := e.close(ctx, s, Route{State: StateDone, Decision: DecisionApproved, Action: ActionClose}, "", handlers)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	return reply, nil
}

// Withdraw ends an open conversation on the candidate's request.
func (e *Engine) Withdraw(ctx context.Context, conversationID string, handlers *ai.StreamHandlers) (Reply, error) {
	ctx, span := e.startSpan(ctx, "screening.withdraw", conversationID)
	defer span.End()

	s, err := LoadSession(ctx, e.store, conversationID, e.cfg.Window)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	if s.Conversation.State == StateDone || (!s.Conversation.Active && s.Conversation.State != StatePending) {
		return Reply{}, e.fail(span, fmt.Errorf("withdraw %s: %w", conversationID, ErrConversationClosed))
	}

	reply, err := e.close(ctx, s, Route{State: StateDone, Decision: DecisionWithdrawn, Action: ActionClose}, "", handlers)
	if err != nil {
		return Reply{}, e.fail(span, err)
	}
	return reply, nil
}

func (e *Engine) beginRequirements(ctx context.Context, s *Session, handlers *ai.StreamHandlers) (Reply, error) {
	next := s.NextPending()
	if next == nil {
		return e.route(ctx, s, e.router.afterRequirements(s), nil, "", handlers)
	}
	route := Route{
		State:    StateOnRequirements,
		Decision: DecisionPending,
		Active:   true,
		Action:   ActionAsk,
		Next:     next,
	}
	return e.route(ctx, s, route, nil, "", handlers)
}

func (e *Engine) answerRequirement(ctx context.Context, s *Session, msg Message, handlers *ai.StreamHandlers) (Reply, error) {
	current := s.Current
	if current == nil {
		return e.route(ctx, s, e.router.afterRequirements(s), nil, "", handlers)
	}

	log := logger.WithFields(e.logger, logger.ScreeningFields(s.Conversation.ID, current.ID, string(current.Type))...)

	instruction, err := e.prompts.Evaluation(s.PromptJob(), promptRequirement(*current))
	if err != nil {
		return Reply{}, err
	}
	history, err := e.history(ctx, s.Conversation.ID)
	if err != nil {
		return Reply{}, err
	}
	resp, err := e.generator.Generate(ctx, withSystem(instruction, history))
	if err != nil {
		return Reply{}, fmt.Errorf("evaluate answer: %w", err)
	}
	log.Debug("evaluation reply", zap.String("reply", utils.TruncateForLog(resp.Text, e.maxLogLen)))

	result, err := e.parser.Parse(current.Type, resp.Text)
	if err != nil {
		return Reply{}, err
	}

	out, err := e.evaluator.Evaluate(*current, result)
	if err != nil {
		return Reply{}, err
	}

	// Resolved requirements are never rewritten.
	if !current.Status.Resolved() {
		update := RequirementUpdate{
			ID:          current.ID,
			Status:      out.Status,
			Value:       out.Value,
			EvaluatedAt: out.EvaluatedAt,
			MessageID:   msg.ID,
			FollowUps:   out.FollowUps,
		}
		if err := e.store.UpdateRequirement(ctx, update); err != nil {
			return Reply{}, fmt.Errorf("update requirement %s: %w", current.ID, err)
		}
	}
	s.Apply(current.ID, out)

	e.observer.ObserveEvaluation(string(current.Type), string(out.Status))
	if out.Exhausted {
		e.observer.ObserveFollowUpExhausted(string(current.Type))
	}
	log.Info("requirement evaluated",
		zap.String("status", string(out.Status)),
		zap.String("step", out.Step),
		zap.String("parse_method", string(result.Method)),
		zap.Int("follow_ups", out.FollowUps),
		zap.Bool("exhausted", out.Exhausted),
	)

	if out.Status.Resolved() {
		note := fmt.Sprintf("%s evaluated as %s", current.Type, out.Status)
		if out.Exhausted {
			note += " after follow-up budget was exhausted"
		}
		if _, err := e.store.SaveMessage(ctx, Message{
			ConversationID: s.Conversation.ID,
			Sender:         SenderSystem,
			Content:        note,
		}); err != nil {
			return Reply{}, fmt.Errorf("save evaluation note: %w", err)
		}
	}

	route := e.router.Next(s, *current, out)
	return e.route(ctx, s, route, &out, acknowledgement(result, out), handlers)
}

// acknowledgement is the model's own reply to the answer. It is dropped when
// the clarification budget ran out, and when the answer was read from free
// text, where the message is the evaluation itself.
func acknowledgement(result parser.Result, out Outcome) string {
	if out.Exhausted || result.Method == parser.MethodText {
		return ""
	}
	return strings.TrimSpace(result.Message)
}

func (e *Engine) answerFollowUp(ctx context.Context, s *Session, handlers *ai.StreamHandlers) (Reply, error) {
	s.Conversation.FollowUpIndex++
	return e.route(ctx, s, e.router.afterRequirements(s), nil, "", handlers)
}

// route persists the routing decision and generates the matching message.
// lead is the model's reply to the answer: it is sent as the clarification
// request itself, or put in front of the generated message otherwise.
func (e *Engine) route(ctx context.Context, s *Session, route Route, out *Outcome, lead string, handlers *ai.StreamHandlers) (Reply, error) {
	if route.Action == ActionClose {
		reply, err := e.close(ctx, s, route, lead, handlers)
		reply.Outcome = out
		return reply, err
	}

	if err := e.setState(ctx, s, route); err != nil {
		return Reply{}, err
	}

	if route.Action == ActionClarify && lead != "" {
		text, err := e.deliver(ctx, s, lead, handlers)
		if err != nil {
			return Reply{}, err
		}
		return e.reply(s, text, route.Next, out), nil
	}

	var (
		instruction string
		err         error
	)
	job := s.PromptJob()
	switch route.Action {
	case ActionAsk:
		instruction, err = e.prompts.Question(job, promptRequirement(*route.Next), s.Progress())
	case ActionClarify:
		instruction, err = e.prompts.Clarification(job, promptRequirement(*route.Next), out.FollowUps, e.evaluator.controller.budget())
	case ActionFollowUp:
		idx := s.Conversation.FollowUpIndex
		instruction = e.prompts.FollowUp(job, s.Job.FollowUpQuestions[idx], prompt.Progress{
			Resolved: idx,
			Total:    len(s.Job.FollowUpQuestions),
		})
	default:
		err = fmt.Errorf("unknown route action %q", route.Action)
	}
	if err != nil {
		return Reply{}, err
	}

	text, err := e.speak(ctx, s, instruction, lead, handlers)
	if err != nil {
		return Reply{}, err
	}

	reply := e.reply(s, text, route.Next, out)
	return reply, nil
}

func (e *Engine) close(ctx context.Context, s *Session, route Route, lead string, handlers *ai.StreamHandlers) (Reply, error) {
	route.Active = false
	if err := e.setState(ctx, s, route); err != nil {
		return Reply{}, err
	}
	e.observer.ObserveDecision(string(route.Decision))
	logger.WithConversation(e.logger, s.Conversation.ID).Info("conversation finished",
		zap.String("decision", string(route.Decision)),
	)

	instruction := e.prompts.Closing(s.PromptJob(), s.Conversation.CandidateName, outcomeWord(route.Decision), s.Outcomes())
	text, err := e.speak(ctx, s, instruction, lead, handlers)
	if err != nil {
		return Reply{}, err
	}
	return e.reply(s, text, nil, nil), nil
}

func (e *Engine) setState(ctx context.Context, s *Session, route Route) error {
	update := ConversationUpdate{
		ID:            s.Conversation.ID,
		State:         route.State,
		Decision:      route.Decision,
		Active:        route.Active,
		FollowUpIndex: s.Conversation.FollowUpIndex,
	}
	if err := e.store.UpdateConversation(ctx, update); err != nil {
		return fmt.Errorf("update conversation %s: %w", s.Conversation.ID, err)
	}
	s.Conversation.State = route.State
	s.Conversation.Decision = route.Decision
	s.Conversation.Active = route.Active
	return nil
}

// speak generates the next assistant message from instruction and the
// conversation history, then stores it with lead in front. Nothing is stored
// when generation fails.
func (e *Engine) speak(ctx context.Context, s *Session, instruction, lead string, handlers *ai.StreamHandlers) (string, error) {
	history, err := e.history(ctx, s.Conversation.ID)
	if err != nil {
		return "", err
	}
	if len(history) == 0 || history[len(history)-1].Role != ai.RoleUser {
		history = append(history, ai.Message{Role: ai.RoleUser, Content: kickoffMessage})
	}
	messages := withSystem(instruction, history)

	var text string
	if handlers != nil {
		// OnComplete gets the whole message, lead included, once it is stored.
		h := *handlers
		h.OnComplete = nil
		if lead != "" && h.OnChunk != nil {
			h.OnChunk(lead + leadSeparator)
		}
		text, err = ai.Collect(e.generator.Stream(ctx, messages), h)
	} else {
		var resp ai.Response
		resp, err = e.generator.Generate(ctx, messages)
		text = resp.Text
	}
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	text = strings.TrimSpace(text)
	if lead != "" {
		text = lead + leadSeparator + text
	}
	if err := e.save(ctx, s, text); err != nil {
		return "", err
	}
	if handlers != nil && handlers.OnComplete != nil {
		handlers.OnComplete(text)
	}
	return text, nil
}

// deliver stores text as the assistant message and forwards it as is.
func (e *Engine) deliver(ctx context.Context, s *Session, text string, handlers *ai.StreamHandlers) (string, error) {
	if err := e.save(ctx, s, text); err != nil {
		return "", err
	}
	if handlers != nil {
		if handlers.OnChunk != nil {
			handlers.OnChunk(text)
		}
		if handlers.OnComplete != nil {
			handlers.OnComplete(text)
		}
	}
	return text, nil
}

func (e *Engine) save(ctx context.Context, s *Session, text string) error {
	if _, err := e.store.SaveMessage(ctx, Message{
		ConversationID: s.Conversation.ID,
		Sender:         SenderAssistant,
		Content:        text,
	}); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

// history converts stored messages into generator turns. System notes stay
// out of the model's context.
func (e *Engine) history(ctx context.Context, conversationID string) ([]ai.Message, error) {
	msgs, err := e.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	out := make([]ai.Message, 0, len(msgs)+1)
	// The greeting opens the conversation; turns must start with the user.
	if len(msgs) > 0 && msgs[0].Sender == SenderAssistant {
		out = append(out, ai.Message{Role: ai.RoleUser, Content: kickoffMessage})
	}
	for _, m := range msgs {
		switch m.Sender {
		case SenderUser:
			out = append(out, ai.Message{Role: ai.RoleUser, Content: m.Content})
		case SenderAssistant:
			out = append(out, ai.Message{Role: ai.RoleAssistant, Content: m.Content})
		}
	}
	return out, nil
}

func (e *Engine) reply(s *Session, text string, next *ConversationRequirement, out *Outcome) Reply {
	return Reply{
		Text:        text,
		State:       s.Conversation.State,
		Decision:    s.Conversation.Decision,
		Active:      s.Conversation.Active,
		Requirement: next,
		Outcome:     out,
	}
}

func (e *Engine) startSpan(ctx context.Context, name, conversationID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("conversation.id", conversationID)))
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("success", false))
	// Configuration errors are operator problems, not candidate ambiguity.
	if requirement.IsConfigError(err) {
		e.logger.Error("screening configuration error", zap.Error(err))
	}
	return err
}

func checkOpen(c Conversation) error {
	switch {
	case c.State == StateDone || !c.Active && c.State != StatePending:
		return fmt.Errorf("conversation %s: %w", c.ID, ErrConversationClosed)
	case c.State == StatePending:
		return fmt.Errorf("conversation %s: %w", c.ID, ErrNotStarted)
	}
	return nil
}

func withSystem(instruction string, history []ai.Message) []ai.Message {
	messages := make([]ai.Message, 0, len(history)+1)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: instruction})
	return append(messages, history...)
}

func outcomeWord(d Decision) string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionDenied:
		return "denied"
	case DecisionWithdrawn:
		return "withdrawn"
	default:
		return strings.ToLower(string(d))
	}
}
