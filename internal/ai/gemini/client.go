package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/spigell/driver-screener/internal/ai"
	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/utils"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200
	tracerName          = "driver-screener/ai/gemini"
)

// sleep is replaced in tests.
var sleep = time.Sleep

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Config holds the Gemini generator settings.
type Config struct {
	APIKey            string
	Model             string
	MaxRetries        int
	MaxLogLength      int
	RequestsPerMinute int
	Breaker           BreakerConfig
}

// Generator implements ai.Generator on top of Gemini chat sessions.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
	breaker    *breaker
	limiter    *rate.Limiter
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(genaiChats{chats: client.Chats}, cfg, log), nil
}

func newGenerator(chats chatCreator, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	log = logger.WithCommonFields(log, "gemini", model)

	g := &Generator{
		chats:      chats,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     log,
		breaker:    newBreaker("gemini-"+model, cfg.Breaker, log),
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return g
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent sends one message under a system instruction and returns
// the textual reply.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	resp, err := g.Generate(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: system},
		{Role: ai.RoleUser, Content: message},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Generate implements ai.Generator. The last non-system message is sent; the
// earlier ones become chat history.
func (g *Generator) Generate(ctx context.Context, messages []ai.Message) (ai.Response, error) {
	if g == nil || g.chats == nil {
		return ai.Response{}, errors.New("gemini generator is not initialized")
	}

	req, err := g.buildRequest(messages)
	if err != nil {
		return ai.Response{}, err
	}

	ctx, span := g.startSpan(ctx, "gemini.generate", req)
	defer span.End()

	g.logger.Debug("gemini generate content request",
		zap.Int("history_length", len(req.history)),
		zap.Int("prompt_length", utf8.RuneCountInString(req.message)),
		zap.String("prompt_preview", utils.TruncateForLog(req.message, g.maxLogLen)),
	)

	text, err := g.breaker.execute(func() (string, error) {
		return g.sendWithRetry(ctx, req, span)
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false), attribute.String("breaker.state", g.breaker.state()))
		return ai.Response{}, err
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, g.maxLogLen)),
	)

	span.SetAttributes(attribute.Bool("success", true))
	return ai.Response{Text: text, Model: g.model}, nil
}

// Stream implements ai.Generator. Streams are never retried since chunks may
// already have been forwarded.
func (g *Generator) Stream(ctx context.Context, messages []ai.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g == nil || g.chats == nil {
			yield("", errors.New("gemini generator is not initialized"))
			return
		}

		req, err := g.buildRequest(messages)
		if err != nil {
			yield("", err)
			return
		}

		ctx, span := g.startSpan(ctx, "gemini.stream", req)
		defer span.End()

		stopped := false
		_, err = g.breaker.execute(func() (string, error) {
			if err := g.wait(ctx); err != nil {
				return "", err
			}
			chat, err := g.chats.Create(ctx, g.model, req.config, req.history)
			if err != nil {
				return "", fmt.Errorf("create chat: %w", err)
			}
			for resp, err := range chat.SendMessageStream(ctx, *genai.NewPartFromText(req.message)) {
				if err != nil {
					return "", fmt.Errorf("stream content: %w", err)
				}
				recordUsage(span, resp)
				chunk := responseText(resp, "")
				if chunk == "" {
					continue
				}
				if !yield(chunk, nil) {
					stopped = true
					return "", nil
				}
			}
			return "", nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("success", false))
			if !stopped {
				yield("", err)
			}
			return
		}
		span.SetAttributes(attribute.Bool("success", true))
	}
}

type request struct {
	config  *genai.GenerateContentConfig
	history []*genai.Content
	message string
}

func (g *Generator) buildRequest(messages []ai.Message) (request, error) {
	system, turns := ai.SplitSystem(messages)
	if len(turns) == 0 {
		return request{}, errors.New("message must not be empty")
	}

	last := turns[len(turns)-1]
	message := strings.TrimSpace(last.Content)
	if last.Role != ai.RoleUser || message == "" {
		return request{}, errors.New("last message must be a non-empty user message")
	}

	req := request{
		config:  &genai.GenerateContentConfig{},
		message: message,
	}
	if system != "" {
		req.config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	for _, turn := range turns[:len(turns)-1] {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		req.history = append(req.history, genai.NewContentFromText(text, role))
	}

	return req, nil
}

func (g *Generator) sendWithRetry(ctx context.Context, req request, span trace.Span) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		text, err := g.send(ctx, req, span)
		if err == nil {
			return text, nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries-1 {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt+1)))

		if err := utils.WaitWith(ctx, delay, sleep); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func (g *Generator) send(ctx context.Context, req request, span trace.Span) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}

	chat, err := g.chats.Create(ctx, g.model, req.config, req.history)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, *genai.NewPartFromText(req.message))
	if err != nil {
		return "", err
	}
	recordUsage(span, resp)

	text := responseText(resp, "\n")
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *Generator) startSpan(ctx context.Context, name string, req request) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.model),
		attribute.Int("ai.history_length", len(req.history)),
	)
	return ctx, span
}

func recordUsage(span trace.Span, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int64("ai.tokens.input", int64(resp.UsageMetadata.PromptTokenCount)),
		attribute.Int64("ai.tokens.output", int64(resp.UsageMetadata.CandidatesTokenCount)),
		attribute.Int64("ai.tokens.total", int64(resp.UsageMetadata.TotalTokenCount)),
	)
}

// responseText joins the text parts of every candidate with sep. Stream
// chunks use an empty separator so words are not split.
func responseText(resp *genai.GenerateContentResponse, sep string) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString(sep)
			}
			builder.WriteString(part.Text)
		}
	}

	if sep == "" {
		return builder.String()
	}
	return strings.TrimSpace(builder.String())
}
