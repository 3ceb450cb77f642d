package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrUnauthorized     = errors.New("invalid or missing API key")
	ErrEmptyText        = errors.New("empty text")
	ErrRerankerDisabled = errors.New("reranker is disabled")
	ErrInvalidState     = errors.New("state must be \"open\" or \"closed\"")
	ErrTextTooShort     = errors.New("text too short after sanitization")
)
