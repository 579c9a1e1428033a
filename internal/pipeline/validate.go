package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Validation failure reasons.
const (
	ReasonNotAccumulatorObject = "not an accumulator object"
	ReasonMissingOperator      = "missing accumulator operator"
)

// ValidationError reports a $group field that is still malformed after
// Repair. It is a hard error: the caller should surface it as a malformed
// generated query rather than retry blindly.
type ValidationError struct {
	StageIndex int
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("$group stage %d: field %q %s", e.StageIndex, e.Field, e.Reason)
}

// Validate checks that every non-_id field of every $group stage is an
// object carrying at least one $-prefixed accumulator key. It must be
// invoked after Repair; it is deliberately conservative and rejects what
// the repairer could not fix instead of guessing further. Fields within a
// stage are checked in sorted order so the reported error is deterministic.
func Validate(p Pipeline) error {
	for i, stage := range p {
		raw, ok := stage["$group"]
		if !ok {
			continue
		}
		group, ok := raw.(map[string]any)
		if !ok {
			// Not an object at all: out of this component's vocabulary,
			// left for the engine to reject as an execution error.
			continue
		}
		fields := make([]string, 0, len(group))
		for field := range group {
			if field != "_id" {
				fields = append(fields, field)
			}
		}
		sort.Strings(fields)
		for _, field := range fields {
			m, ok := group[field].(map[string]any)
			if !ok {
				return &ValidationError{StageIndex: i, Field: field, Reason: ReasonNotAccumulatorObject}
			}
			if !hasAccumulatorKey(m) {
				return &ValidationError{StageIndex: i, Field: field, Reason: ReasonMissingOperator}
			}
		}
	}
	return nil
}

func hasAccumulatorKey(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
