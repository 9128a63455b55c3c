package service

import "errors"

// Error categories surfaced to callers. Controllers map these onto HTTP
// statuses; everything wrapping ErrUpstream or ErrStore keeps internal
// collaborator error text out of the message.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("invalid request")
	ErrUpstream   = errors.New("question generation failed")
	ErrStore      = errors.New("store unavailable")
)
