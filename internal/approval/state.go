package approval

import (
	"github.com/arborist-labs/statmcp/internal/session"
)

// Elicit is called when a category has no memoized decision yet and must
// prompt the client. It is an alias of session.Elicit so callers can pass
// a session.Context's Elicit field directly.
type Elicit = session.Elicit

// Gate checks text (typically a tool's rendered argument string) against
// every category in reg. For each matching category it consults sess's
// memoized decision, or serializes a single elicitation per category
// through elicit if none exists yet. Gate returns a *DeniedError as soon
// as any matching category is denied; it returns true only once every
// matching category is approved.
func Gate(reg *Registry, sess *session.Session, text string, elicit Elicit) (bool, error) {
	for _, categoryID := range reg.MatchCategories(text) {
		approved, err := resolveCategory(reg, sess, categoryID, elicit)
		if err != nil {
			return false, err
		}
		if !approved {
			return false, Denied(categoryID)
		}
	}
	return true, nil
}

func resolveCategory(reg *Registry, sess *session.Session, categoryID string, elicit Elicit) (bool, error) {
	decision, resolved, wait := sess.AwaitOrStartApproval(categoryID)
	if resolved {
		return decision == session.DecisionApproved, nil
	}
	if wait != nil {
		<-wait
		return sess.Decision(categoryID) == session.DecisionApproved, nil
	}

	// We are the caller that registered the pending elicitation; resolve it.
	if reg.AutoApprove() {
		sess.SetDecision(categoryID, session.DecisionApproved)
		reg.recordDecision(categoryID, "approved")
		return true, nil
	}

	decision, err := elicit(categoryID, reg.Describe(categoryID))
	if err != nil {
		return false, err
	}
	sess.SetDecision(categoryID, decision)
	reg.recordDecision(categoryID, decisionLabel(decision))
	return decision == session.DecisionApproved, nil
}

func decisionLabel(d session.ApprovalDecision) string {
	switch d {
	case session.DecisionApproved:
		return "approved"
	case session.DecisionDenied:
		return "denied"
	default:
		return "unasked"
	}
}
