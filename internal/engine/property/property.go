// Package property provides typed feature registries.
//
// A Registry maps the feature names of one target type to typed get/set
// pairs. It is built once per type, before use, and lets callers set a
// feature by name while the undo operation is derived from the value the
// getter reported before the change.
package property

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dshills/stepwise/internal/engine/history"
)

// Errors returned by registry operations.
var (
	// ErrUnknownFeature indicates the feature is not registered.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrValueType indicates a value of the wrong type for the feature.
	ErrValueType = errors.New("wrong value type for feature")
)

// Feature names a property of a target type.
type Feature string

// SetOp sets a feature to a value.
type SetOp struct {
	Feature Feature
	Value   any
}

// OpName returns the operation name.
func (op SetOp) OpName() string {
	return "set:" + string(op.Feature)
}

// Payload returns the operation arguments for export.
func (op SetOp) Payload() any {
	return map[string]any{"feature": string(op.Feature), "value": op.Value}
}

type binding[T any] struct {
	get   func(T) any
	set   func(T, any) error
	equal func(a, b any) bool
}

// Registry maps features of T to accessors.
type Registry[T any] struct {
	name     string
	features map[Feature]binding[T]
}

// NewRegistry creates an empty registry. name identifies T in errors.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, features: make(map[Feature]binding[T])}
}

// Register adds a feature with a typed getter and setter. Registering a
// feature twice replaces it.
func Register[T any, V comparable](r *Registry[T], f Feature, get func(T) V, set func(T, V)) {
	r.features[f] = binding[T]{
		get: func(t T) any { return get(t) },
		set: func(t T, v any) error {
			tv, ok := v.(V)
			if !ok {
				var want V
				return fmt.Errorf("%w: %s.%s wants %T, got %T", ErrValueType, r.name, f, want, v)
			}
			set(t, tv)
			return nil
		},
		equal: func(a, b any) bool {
			av, aok := a.(V)
			bv, bok := b.(V)
			return aok && bok && av == bv
		},
	}
}

// Features returns the registered feature names, sorted.
func (r *Registry[T]) Features() []Feature {
	out := make([]Feature, 0, len(r.features))
	for f := range r.features {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func (r *Registry[T]) lookup(f Feature) (binding[T], error) {
	b, ok := r.features[f]
	if !ok {
		return b, fmt.Errorf("%w: %s.%s", ErrUnknownFeature, r.name, f)
	}
	return b, nil
}

// Get returns the current value of feature f on t.
func (r *Registry[T]) Get(t T, f Feature) (any, error) {
	b, err := r.lookup(f)
	if err != nil {
		return nil, err
	}
	return b.get(t), nil
}

// Apply handles SetOp for targets that delegate to the registry. Other
// operations return history.ErrOperationNotSupported, and so do features
// that are not registered.
func (r *Registry[T]) Apply(t T, op history.Operation) error {
	set, ok := op.(SetOp)
	if !ok {
		return history.ErrOperationNotSupported
	}
	b, ok := r.features[set.Feature]
	if !ok {
		return fmt.Errorf("%w: %s.%s", history.ErrOperationNotSupported, r.name, set.Feature)
	}
	return b.set(t, set.Value)
}

// Recorder applies an operation and records its reversal.
type Recorder interface {
	Record(label string, target history.Target, redo, undo history.Operation) error
}

// Change sets feature f of t to v through rec. target is the command target
// for t and must route SetOp to r. The undo operation restores the value
// the getter reported before the change. Setting the current value records
// nothing. It returns true if a change was recorded.
func Change[T any](rec Recorder, r *Registry[T], target history.Target, t T, f Feature, v any) (bool, error) {
	b, err := r.lookup(f)
	if err != nil {
		return false, err
	}
	old := b.get(t)
	if b.equal(old, v) {
		return false, nil
	}
	label := "Set " + string(f)
	if err := rec.Record(label, target, SetOp{Feature: f, Value: v}, SetOp{Feature: f, Value: old}); err != nil {
		return false, err
	}
	return true, nil
}
