package outcome

import (
	"fmt"
	"strconv"
	"strings"
)

// HardSuccessRule decides hard success from (success, collision count).
// The classifier additionally requires success, so a rule can never mark a
// failed episode as a hard success.
type HardSuccessRule interface {
	Name() string
	Hard(success bool, collisions int) bool
}

// ZeroCollision is the default: success with no collision at all.
type ZeroCollision struct{}

func (ZeroCollision) Name() string { return "zero_collision" }

func (ZeroCollision) Hard(success bool, collisions int) bool {
	return success && collisions == 0
}

// SuccessOnly treats every success as a hard success.
type SuccessOnly struct{}

func (SuccessOnly) Name() string { return "success_only" }

func (SuccessOnly) Hard(success bool, _ int) bool { return success }

// MaxCollisions tolerates up to Limit collisions.
type MaxCollisions struct {
	Limit int
}

func (m MaxCollisions) Name() string { return "max_collisions:" + strconv.Itoa(m.Limit) }

func (m MaxCollisions) Hard(success bool, collisions int) bool {
	return success && collisions <= m.Limit
}

// RuleNames lists the names accepted by ParseRule.
var RuleNames = []string{"zero_collision", "success_only", "max_collisions"}

// ParseRule resolves a rule by name. "max_collisions" takes its limit from
// limit, or from a "max_collisions:N" suffix.
func ParseRule(name string, limit int) (HardSuccessRule, error) {
	name = strings.TrimSpace(name)
	if base, arg, ok := strings.Cut(name, ":"); ok && base == "max_collisions" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("hard-success rule %q: invalid limit: %w", name, err)
		}
		name, limit = base, n
	}
	switch name {
	case "", "zero_collision":
		return ZeroCollision{}, nil
	case "success_only":
		return SuccessOnly{}, nil
	case "max_collisions":
		if limit < 0 {
			return nil, fmt.Errorf("hard-success rule %q: limit must be >= 0", name)
		}
		return MaxCollisions{Limit: limit}, nil
	default:
		return nil, fmt.Errorf("unknown hard-success rule %q (want one of %s)", name, strings.Join(RuleNames, ", "))
	}
}
