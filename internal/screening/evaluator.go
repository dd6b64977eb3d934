package screening

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/parser"
	"github.com/spigell/driver-screener/internal/requirement"
)

const (
	stepResolved      = "resolved"
	stepAssessment    = "assessment"
	stepClarification = "clarification"
	stepCriteria      = "criteria"
	stepAmbiguous     = "ambiguous"
)

// Step is one stage of the evaluation pipeline. A step either produces the
// outcome (done is true) or passes the answer on.
type Step interface {
	Name() string
	Apply(req ConversationRequirement, result parser.Result) (out Outcome, done bool, err error)
}

type stepFunc struct {
	name  string
	apply func(ConversationRequirement, parser.Result) (Outcome, bool, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Apply(req ConversationRequirement, result parser.Result) (Outcome, bool, error) {
	return s.apply(req, result)
}

// Evaluator decides the status of a requirement from one parsed answer.
type Evaluator struct {
	controller *Controller
	logger     *zap.Logger
	now        func() time.Time
	steps      []Step
}

func NewEvaluator(controller *Controller, log *zap.Logger) *Evaluator {
	if controller == nil {
		controller = NewController()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Evaluator{controller: controller, logger: log, now: time.Now}
	e.steps = []Step{
		stepFunc{stepResolved, e.keepResolved},
		stepFunc{stepAssessment, e.explicitNotMet},
		stepFunc{stepClarification, e.clarificationHint},
		stepFunc{stepCriteria, e.criteria},
		stepFunc{stepAmbiguous, e.ambiguous},
	}
	return e
}

// Steps lists the pipeline in execution order.
func (e *Evaluator) Steps() []Step {
	return e.steps
}

// Evaluate runs the pipeline. Configuration errors in the requirement are
// returned as is and never turned into a clarification request.
func (e *Evaluator) Evaluate(req ConversationRequirement, result parser.Result) (Outcome, error) {
	if err := req.Type.Check(); err != nil {
		return Outcome{}, err
	}

	for _, step := range e.steps {
		out, done, err := step.Apply(req, result)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", step.Name(), err)
		}
		if !done {
			continue
		}
		out.Step = step.Name()
		e.logger.Debug("evaluation step",
			zap.String("name", step.Name()),
			zap.String("status", string(out.Status)),
			zap.Bool("needs_clarification", out.NeedsClarification),
			zap.Int("follow_ups", out.FollowUps),
		)
		return out, nil
	}

	// The last step always decides.
	return Outcome{}, fmt.Errorf("evaluation pipeline produced no outcome for %s", req.Type)
}

func (e *Evaluator) keepResolved(req ConversationRequirement, _ parser.Result) (Outcome, bool, error) {
	if !req.Status.Resolved() {
		return Outcome{}, false, nil
	}
	return Outcome{
		Status:      req.Status,
		Value:       req.Value,
		EvaluatedAt: req.EvaluatedAt,
		FollowUps:   req.FollowUps,
	}, true, nil
}

// explicitNotMet trusts a NOT_MET judgment from the model on a required
// requirement, even when it also asked for clarification.
func (e *Evaluator) explicitNotMet(req ConversationRequirement, result parser.Result) (Outcome, bool, error) {
	if result.Assessment != requirement.StatusNotMet || !req.Required() {
		return Outcome{}, false, nil
	}
	return e.resolved(req, requirement.StatusNotMet, result.Value), true, nil
}

// clarificationHint asks again when the model wants clarification, unless it
// already judged the answer NOT_MET.
func (e *Evaluator) clarificationHint(req ConversationRequirement, result parser.Result) (Outcome, bool, error) {
	if !result.NeedsClarification || result.Assessment == requirement.StatusNotMet {
		return Outcome{}, false, nil
	}
	return e.controller.Clarify(req), true, nil
}

func (e *Evaluator) criteria(req ConversationRequirement, result parser.Result) (Outcome, bool, error) {
	if result.Success && result.Value != nil {
		status, err := requirement.Evaluate(req.Type, req.Criteria, result.Value)
		if err != nil {
			return Outcome{}, false, err
		}
		if status.Resolved() {
			return e.resolved(req, status, result.Value), true, nil
		}
		return Outcome{}, false, nil
	}

	if result.Assessment.Resolved() {
		return e.resolved(req, result.Assessment, nil), true, nil
	}
	return Outcome{}, false, nil
}

func (e *Evaluator) ambiguous(req ConversationRequirement, _ parser.Result) (Outcome, bool, error) {
	return e.controller.Clarify(req), true, nil
}

func (e *Evaluator) resolved(req ConversationRequirement, status requirement.Status, value requirement.Value) Outcome {
	at := e.now()
	return Outcome{
		Status:      status,
		Value:       value,
		EvaluatedAt: &at,
		FollowUps:   req.FollowUps,
		Deny:        status == requirement.StatusNotMet && req.Required(),
	}
}
