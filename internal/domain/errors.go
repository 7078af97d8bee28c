package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks a guild that lacks a role the engine needs.
	ErrConfiguration = errors.New("configuration error")
	// ErrPermission marks a member the bot is not allowed to modify.
	ErrPermission       = errors.New("missing permission")
	ErrTransientNetwork = errors.New("transient network error")
	ErrRateLimited      = errors.New("rate limited")
	ErrDirectoryWrite   = errors.New("directory write failed")
	// ErrUnauthorized is returned when the bot token is rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

type RateLimitError struct {
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s, global=%t)", e.RetryAfter, e.Global)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
