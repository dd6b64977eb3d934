// Package parser turns one model reply into a typed answer for the
// requirement currently being screened.
package parser

import (
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/extract"
	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/requirement"
	"github.com/spigell/driver-screener/internal/utils"
)

const defaultMaxLogLength = 200

// Method records which stage produced the value of a Result.
type Method string

const (
	MethodPayload Method = "payload"
	MethodText    Method = "text"
	MethodNone    Method = "none"
)

// Result is the outcome of parsing one reply. Message is always populated
// with the best cleaned text available, even when parsing failed.
type Result struct {
	Success bool
	Value   requirement.Value
	// Assessment is the model's own judgment; empty when it gave none.
	Assessment         requirement.Status
	Confidence         *float64
	Message            string
	NeedsClarification bool
	Method             Method
}

// Observer receives one call per parsed reply.
type Observer interface {
	ObserveParse(requirementType, method string)
}

type Parser struct {
	logger    *zap.Logger
	maxLogLen int
	observer  Observer
}

type Option func(*Parser)

// WithMaxLogLength bounds reply previews in debug logs.
func WithMaxLogLength(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxLogLen = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Parser) {
		p.observer = o
	}
}

func New(log *zap.Logger, opts ...Option) *Parser {
	p := &Parser{
		logger:    logger.WithFields(log),
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the answer for t from reply. The structured payload is
// preferred; the text heuristics run only when no valid payload exists and
// the model did not explicitly ask for clarification. The only error is an
// unsupported requirement type.
func (p *Parser) Parse(t requirement.Type, reply string) (Result, error) {
	if err := t.Check(); err != nil {
		return Result{}, err
	}

	env, residual := extract.Decompose(extract.Object(reply))

	res := Result{
		Assessment: env.Assessment,
		Confidence: env.Confidence,
		Message:    extract.CleanMessage(reply),
		Method:     MethodNone,
	}
	if env.Message != "" {
		res.Message = extract.CleanMessage(env.Message)
	}

	log := p.logger.With(
		zap.String(logger.FieldRequirementType, string(t)),
		zap.Int("reply_length", utf8.RuneCountInString(reply)),
		zap.String("reply_preview", utils.TruncateForLog(reply, p.maxLogLen)),
	)

	if residual != nil {
		if extract.NeedsClarification(residual) {
			res.NeedsClarification = true
			res.Method = MethodPayload
			log.Debug("model asked for clarification")
			p.observe(t, res.Method)
			return res, nil
		}

		value, err := requirement.DecodeValue(t, residual)
		if err == nil {
			res.Success = true
			res.Value = value
			res.Method = MethodPayload
			log.Debug("parsed structured answer")
			p.observe(t, res.Method)
			return res, nil
		}

		var verr *requirement.ValidationError
		if !errors.As(err, &verr) {
			return Result{}, err
		}
		log.Debug("structured answer rejected by schema", zap.Error(verr))
	}

	if value := requirement.FromText(t, reply); value != nil {
		res.Success = true
		res.Value = value
		res.Method = MethodText
		log.Debug("parsed answer from text")
		p.observe(t, res.Method)
		return res, nil
	}

	res.NeedsClarification = true
	log.Debug("no answer found in reply")
	p.observe(t, res.Method)
	return res, nil
}

func (p *Parser) observe(t requirement.Type, m Method) {
	if p.observer != nil {
		p.observer.ObserveParse(string(t), string(m))
	}
}
