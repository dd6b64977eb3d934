package screening

import (
	"fmt"
	"strings"

	"github.com/spigell/driver-screener/internal/requirement"
)

// NotMetPolicy decides what a NOT_MET outcome on a non-required requirement
// does to the conversation.
type NotMetPolicy string

const (
	// PolicyAdvance moves on to the next requirement.
	PolicyAdvance NotMetPolicy = "advance"
	// PolicyBlock denies the candidate as if the requirement were required.
	PolicyBlock NotMetPolicy = "block"
)

func ParseNotMetPolicy(s string) (NotMetPolicy, error) {
	switch p := NotMetPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAdvance, nil
	case PolicyAdvance, PolicyBlock:
		return p, nil
	default:
		return "", fmt.Errorf("unknown not-met policy %q (want %q or %q)", s, PolicyAdvance, PolicyBlock)
	}
}

// Action is what the engine does after routing.
type Action string

const (
	ActionClarify  Action = "clarify"
	ActionAsk      Action = "ask"
	ActionFollowUp Action = "follow_up"
	ActionClose    Action = "close"
)

// Route is the routing decision for one evaluated answer.
type Route struct {
	State    State
	Decision Decision
	Active   bool
	Action   Action
	// Next is the requirement to ask about, set for ActionAsk.
	Next *ConversationRequirement
}

// Router applies the conversation transition table.
type Router struct {
	Policy NotMetPolicy
}

// Next routes the session after current was evaluated to out. The session's
// requirements must already reflect out.
func (r Router) Next(s *Session, current ConversationRequirement, out Outcome) Route {
	switch {
	case out.Status == requirement.StatusPending:
		return Route{
			State:    StateOnRequirements,
			Decision: DecisionPending,
			Active:   true,
			Action:   ActionClarify,
			Next:     &current,
		}
	case out.Status == requirement.StatusNotMet && (out.Deny || current.Required() || r.Policy == PolicyBlock):
		return Route{State: StateDone, Decision: DecisionDenied, Action: ActionClose}
	}

	if next := s.NextPending(); next != nil {
		return Route{
			State:    StateOnRequirements,
			Decision: DecisionPending,
			Active:   true,
			Action:   ActionAsk,
			Next:     next,
		}
	}
	return r.afterRequirements(s)
}

// afterRequirements picks the phase that follows the last screened requirement.
func (r Router) afterRequirements(s *Session) Route {
	if s.Conversation.FollowUpIndex < len(s.Job.FollowUpQuestions) {
		return Route{
			State:    StateOnFollowUpQuestions,
			Decision: DecisionPending,
			Active:   true,
			Action:   ActionFollowUp,
		}
	}
	return Route{State: StateDone, Decision: DecisionApproved, Action: ActionClose}
}
