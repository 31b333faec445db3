// Package outcome turns an ingested episode trace into a typed outcome.
package outcome

import (
	"github.com/signalnine/clutterbench/internal/trace"
)

// FailureMode is the single tag every episode receives.
type FailureMode string

const (
	Success      FailureMode = "success"
	NeverReached FailureMode = "never_reached"
	MissedGrasp  FailureMode = "missed_grasp"
	Dropped      FailureMode = "dropped"
)

// FailureModes lists every mode in display order.
var FailureModes = []FailureMode{Success, NeverReached, MissedGrasp, Dropped}

func (f FailureMode) Valid() bool {
	switch f {
	case Success, NeverReached, MissedGrasp, Dropped:
		return true
	}
	return false
}

// EpisodeOutcome is created once per (run, episode, method) and never mutated.
type EpisodeOutcome struct {
	Success        bool        `json:"success"`
	HardSuccess    bool        `json:"hard_success"`
	CollisionCount int         `json:"collision_count"`
	FailureMode    FailureMode `json:"failure_mode"`
}

// EnvironmentFailure is the outcome recorded when the episode process
// crashed or timed out before producing usable telemetry.
func EnvironmentFailure() EpisodeOutcome {
	return EpisodeOutcome{FailureMode: NeverReached}
}

// Classifier maps traces to outcomes under a hard-success rule.
type Classifier struct {
	rule HardSuccessRule
}

// NewClassifier returns a classifier using rule, or ZeroCollision when nil.
func NewClassifier(rule HardSuccessRule) *Classifier {
	if rule == nil {
		rule = ZeroCollision{}
	}
	return &Classifier{rule: rule}
}

func (c *Classifier) Rule() HardSuccessRule { return c.rule }

// Classify is total: every trace, however incomplete, maps to exactly one
// failure mode. Unreported booleans count as not achieved.
//
// Decision order: success predicate, reachability, grasp secured, then
// dropped for a grasp that did not end in success. When the dropped fallback
// contradicts the trace's own dropped or grasp_attempted flags, the
// disagreement is appended to t.Issues.
func (c *Classifier) Classify(t *trace.RawTrace) EpisodeOutcome {
	if t == nil || !t.Completed() {
		return EnvironmentFailure()
	}
	out := EpisodeOutcome{CollisionCount: t.Collisions()}
	switch {
	case isTrue(t.Success):
		out.Success = true
		out.FailureMode = Success
	case !isTrue(t.Reached):
		out.FailureMode = NeverReached
	case !isTrue(t.Grasped):
		out.FailureMode = MissedGrasp
	default:
		out.FailureMode = Dropped
		if t.Dropped != nil && !*t.Dropped {
			t.Issues = append(t.Issues, "grasped without success but dropped=false, classified as dropped")
		}
		if t.GraspAttempted != nil && !*t.GraspAttempted {
			t.Issues = append(t.Issues, "grasped=true contradicts grasp_attempted=false")
		}
	}
	out.HardSuccess = out.Success && c.rule.Hard(out.Success, out.CollisionCount)
	return out
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
