package scene

import "errors"

// Errors returned by scene operations.
var (
	// ErrNotFound indicates no attached component has the given ID.
	ErrNotFound = errors.New("component not found")

	// ErrNotTopLevel indicates a component nested in a group where a
	// top-level one is required.
	ErrNotTopLevel = errors.New("component is not top-level")

	// ErrNotGroup indicates a component that is not a group.
	ErrNotGroup = errors.New("component is not a group")

	// ErrNotAttached indicates a component that is not part of the document.
	ErrNotAttached = errors.New("component is not attached")

	// ErrAttached indicates a component that is already part of the document.
	ErrAttached = errors.New("component is already attached")

	// ErrEmptyGroup indicates a group without members.
	ErrEmptyGroup = errors.New("group needs at least one member")

	// ErrInvalidSize indicates a negative width or height.
	ErrInvalidSize = errors.New("invalid size")
)
