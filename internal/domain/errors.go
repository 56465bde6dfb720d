package domain

import "errors"

var (
	// ErrValidation is returned when a spec is rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrInconsistent is returned when an update finds a broken discovery
	// chain (missing relation, handler or discovery).
	ErrInconsistent = errors.New("discovery graph is inconsistent")

	// ErrNotFound is returned when the targeted proxy selector does not exist.
	ErrNotFound = errors.New("not found")
)

// Result messages returned by successful operations.
const (
	MsgCreateSuccess = "create success"
	MsgUpdateSuccess = "update success"
	MsgDeleteSuccess = "delete success"
	MsgQuerySuccess  = "query success"
)
