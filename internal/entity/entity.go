package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

const (
	KindCharacter       Kind = "character"
	KindWorldElement    Kind = "world_element"
	KindTimelineEvent   Kind = "timeline_event"
	KindStoryboardScene Kind = "storyboard_scene"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindCharacter, KindWorldElement, KindTimelineEvent, KindStoryboardScene}

func ParseKind(value string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "character", "characters":
		return KindCharacter, nil
	case "world_element", "world_elements", "world":
		return KindWorldElement, nil
	case "timeline_event", "timeline_events", "event", "events", "timeline":
		return KindTimelineEvent, nil
	case "storyboard_scene", "storyboard_scenes", "scene", "scenes", "storyboard":
		return KindStoryboardScene, nil
	}
	return "", fmt.Errorf("unknown entity kind: %q", value)
}

// Label is the human readable name used in recommendation reasons.
func (k Kind) Label() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindWorldElement:
		return "world element"
	case KindTimelineEvent:
		return "timeline event"
	case KindStoryboardScene:
		return "storyboard scene"
	}
	return string(k)
}

func (k Kind) Valid() bool {
	switch k {
	case KindCharacter, KindWorldElement, KindTimelineEvent, KindStoryboardScene:
		return true
	}
	return false
}

// Field is one comparable attribute. Value holds a string or a bool.
type Field struct {
	Name  string
	Value any
}

// Entity is implemented by the four record kinds. Identity returns the raw
// identity value; callers normalize it with NormalizeKey.
type Entity interface {
	Kind() Kind
	Identity() string
	Fields() []Field
}

type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Personality string `json:"personality,omitempty"`
	Background  string `json:"background,omitempty"`
}

func (c *Character) Kind() Kind       { return KindCharacter }
func (c *Character) Identity() string { return c.Name }

func (c *Character) Fields() []Field {
	return []Field{
		{Name: "role", Value: c.Role},
		{Name: "personality", Value: c.Personality},
		{Name: "background", Value: c.Background},
	}
}

type WorldElement struct {
	Title       string `json:"title"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

func (w *WorldElement) Kind() Kind       { return KindWorldElement }
func (w *WorldElement) Identity() string { return w.Title }

func (w *WorldElement) Fields() []Field {
	return []Field{
		{Name: "category", Value: w.Category},
		{Name: "description", Value: w.Description},
	}
}

type TimelineEvent struct {
	Title       string `json:"title,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	Importance  string `json:"importance,omitempty"`
	// Explicit is true when the event time is stated verbatim in the text.
	Explicit bool `json:"explicit_events"`
}

func (e *TimelineEvent) Kind() Kind { return KindTimelineEvent }

// Identity is the title, falling back to the date for untitled events.
func (e *TimelineEvent) Identity() string {
	if strings.TrimSpace(e.Title) != "" {
		return e.Title
	}
	return e.Date
}

func (e *TimelineEvent) Fields() []Field {
	return []Field{
		{Name: "date", Value: e.Date},
		{Name: "description", Value: e.Description},
		{Name: "importance", Value: e.Importance},
		{Name: "explicit", Value: e.Explicit},
	}
}

type StoryboardScene struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (s *StoryboardScene) Kind() Kind       { return KindStoryboardScene }
func (s *StoryboardScene) Identity() string { return s.Title }

func (s *StoryboardScene) Fields() []Field {
	return []Field{
		{Name: "description", Value: s.Description},
	}
}

// Key returns the normalized identity key of e.
func Key(e Entity) string {
	if e == nil {
		return ""
	}
	return NormalizeKey(e.Identity())
}

// FieldValue looks up a comparable field by name.
func FieldValue(e Entity, name string) (any, bool) {
	for _, field := range e.Fields() {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

func New(kind Kind) (Entity, error) {
	switch kind {
	case KindCharacter:
		return &Character{}, nil
	case KindWorldElement:
		return &WorldElement{}, nil
	case KindTimelineEvent:
		return &TimelineEvent{}, nil
	case KindStoryboardScene:
		return &StoryboardScene{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind: %q", kind)
}

func Decode(kind Kind, data []byte) (Entity, error) {
	e, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return e, nil
}

func Encode(e Entity) ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.Kind(), err)
	}
	return data, nil
}

// Clone returns a deep copy so callers can hand records across package
// boundaries without sharing mutable state.
func Clone(e Entity) Entity {
	switch v := e.(type) {
	case *Character:
		c := *v
		return &c
	case *WorldElement:
		c := *v
		return &c
	case *TimelineEvent:
		c := *v
		return &c
	case *StoryboardScene:
		c := *v
		return &c
	}
	return e
}
