package screening

import (
	"time"

	"github.com/spigell/driver-screener/internal/requirement"
)

// MaxFollowUps is the number of ambiguous answers tolerated per requirement.
// The next ambiguous answer resolves the requirement as NOT_MET.
const MaxFollowUps = 5

// Outcome is the result of evaluating one answer against a requirement.
type Outcome struct {
	Status requirement.Status
	Value  requirement.Value
	// EvaluatedAt is set once the requirement is resolved.
	EvaluatedAt        *time.Time
	NeedsClarification bool
	// FollowUps is the persisted ambiguous-answer count after this turn.
	FollowUps int
	// Exhausted is set when the follow-up budget forced NOT_MET.
	Exhausted bool
	// Deny is set when the outcome must end the conversation with a denial.
	Deny bool
	// Step names the evaluation step that produced the outcome.
	Step string
}

// Controller bounds clarification turns for one requirement.
type Controller struct {
	MaxFollowUps int
	now          func() time.Time
}

func NewController() *Controller {
	return &Controller{MaxFollowUps: MaxFollowUps, now: time.Now}
}

// Clarify records one more ambiguous answer for req. Within the budget the
// requirement stays PENDING and asks for another turn; past it the
// requirement is forced to NOT_MET with its value cleared.
func (c *Controller) Clarify(req ConversationRequirement) Outcome {
	count := req.FollowUps + 1
	if count <= c.budget() {
		return Outcome{
			Status:             requirement.StatusPending,
			Value:              req.Value,
			NeedsClarification: true,
			FollowUps:          count,
		}
	}

	at := c.clock()()
	return Outcome{
		Status:      requirement.StatusNotMet,
		EvaluatedAt: &at,
		FollowUps:   count,
		Exhausted:   true,
		Deny:        req.Required(),
	}
}

func (c *Controller) budget() int {
	if c.MaxFollowUps <= 0 {
		return MaxFollowUps
	}
	return c.MaxFollowUps
}

func (c *Controller) clock() func() time.Time {
	if c.now == nil {
		return time.Now
	}
	return c.now
}
