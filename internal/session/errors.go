package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrItemDecided     = errors.New("item already decided")
	ErrStoryLocked     = errors.New("story is locked by another reconciliation")
)
