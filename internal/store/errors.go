package store

import (
	"errors"
	"fmt"
	"strings"

	"lorekeeper/internal/entity"
)

var (
	ErrEmptyStory = errors.New("story id is required")
	ErrEmptyKey   = errors.New("identity key is required")
)

// WriteError reports a failed durable write for a single record.
type WriteError struct {
	StoryID string
	Kind    entity.Kind
	Key     string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s %q in story %q: %v", e.Kind, e.Key, e.StoryID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func NewWriteError(storyID string, e entity.Entity, err error) *WriteError {
	we := &WriteError{StoryID: storyID, Err: err}
	if e != nil {
		we.Kind = e.Kind()
		we.Key = entity.Key(e)
	}
	return we
}

// CheckRecord validates the arguments shared by every Upsert implementation.
func CheckRecord(storyID string, e entity.Entity) error {
	if strings.TrimSpace(storyID) == "" {
		return ErrEmptyStory
	}
	if e == nil {
		return fmt.Errorf("record is nil")
	}
	if !e.Kind().Valid() {
		return fmt.Errorf("unknown entity kind: %q", e.Kind())
	}
	if entity.Key(e) == "" {
		return ErrEmptyKey
	}
	return nil
}
