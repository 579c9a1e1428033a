// Package pipeline repairs and validates MongoDB aggregation pipelines
// generated by an LLM. Models that are asked for a $group stage routinely
// emit accumulator expressions as strings ("count": "$sum: 1") instead of
// the nested objects the query engine requires ("count": {"$sum": 1}).
// Repair is a single best-effort normalization pass over an enumerable set
// of malformed shapes; Validate rejects whatever Repair could not fix so
// that bad queries fail early instead of as opaque engine errors.
package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// Stage is one step of an aggregation pipeline, keyed by an operator name
// such as "$group", "$match" or "$sort".
type Stage = map[string]any

// Pipeline is an ordered sequence of aggregation stages. Order is
// significant: it is the execution order in the query engine.
type Pipeline = []Stage

// DefaultOperand is substituted when a bare accumulator like "$sum" arrives
// with no operand at all. "$value" is a guess about user intent, not a
// contract; override it with WithDefaultOperand if the schema suggests a
// better field.
const DefaultOperand = "$value"

// accumulatorPattern recognizes a stringified accumulator expression:
// "$sum: 1", "$avg $price", "$avg$price" or a bare "$sum". Operator names
// are case-sensitive and limited to the $group accumulator vocabulary; the
// operand is optional.
var accumulatorPattern = regexp.MustCompile(`^(\$(?:sum|avg|min|max|first|last|push|addToSet))[:\s]*["']?(\$?[A-Za-z0-9_.]+)?["']?$`)

type options struct {
	defaultOperand any
}

// Option configures Repair.
type Option func(*options)

// WithDefaultOperand overrides the operand used for bare accumulators that
// carry no operand of their own.
func WithDefaultOperand(operand any) Option {
	return func(o *options) { o.defaultOperand = operand }
}

// Repair returns a copy of p in which every recognizably malformed
// accumulator inside a $group stage has been rewritten as a proper
// single-key object. Stages without a $group key, the _id entry of a group
// specification, and values the heuristic cannot interpret are passed
// through untouched. Repair never mutates its input, never fails, and is
// idempotent: repairing an already repaired pipeline is the identity.
func Repair(p Pipeline, opts ...Option) Pipeline {
	o := options{defaultOperand: DefaultOperand}
	for _, opt := range opts {
		opt(&o)
	}
	if p == nil {
		return nil
	}
	fixed := make(Pipeline, 0, len(p))
	for _, stage := range p {
		fixed = append(fixed, repairStage(stage, o))
	}
	return fixed
}

func repairStage(stage Stage, o options) Stage {
	raw, ok := stage["$group"]
	if !ok {
		return stage
	}
	group, ok := raw.(map[string]any)
	if !ok {
		// A $group whose body is not an object is left for the engine to
		// reject; guessing a structure here would be invention.
		return stage
	}

	out := make(Stage, len(stage))
	for k, v := range stage {
		out[k] = v
	}
	newGroup := make(map[string]any, len(group))
	for field, value := range group {
		if field == "_id" {
			newGroup[field] = value
			continue
		}
		newGroup[field] = repairAccumulator(value, o)
	}
	out["$group"] = newGroup
	return out
}

// repairAccumulator rewrites one group field value. Recognition order:
// strict accumulator pattern first, then a colon split, then give up and
// pass the value through for Validate to flag.
func repairAccumulator(value any, o options) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "$") {
		return value
	}

	if m := accumulatorPattern.FindStringSubmatch(trimmed); m != nil {
		op := m[1]
		if m[2] == "" {
			return map[string]any{op: o.defaultOperand}
		}
		return map[string]any{op: coerceOperand(m[2])}
	}

	// Fallback: split on the first colon. The operator key is taken
	// verbatim, without checking it against the accumulator vocabulary,
	// and the operand stays a string.
	if i := strings.Index(trimmed, ":"); i >= 0 {
		op := strings.TrimSpace(trimmed[:i])
		operand := strings.Trim(strings.TrimSpace(trimmed[i+1:]), `"'`)
		return map[string]any{op: operand}
	}

	return value
}

func coerceOperand(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
