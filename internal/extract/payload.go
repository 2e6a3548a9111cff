package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lorekeeper/internal/entity"
)

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// ParsePayload decodes an extraction response. Code fences and prose around
// the JSON object are ignored, "name" is accepted in place of "title" and a
// missing explicit_events flag reads as false.
func ParsePayload(text string) (*Batch, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("empty extraction payload")
	}
	if !strings.HasPrefix(body, "{") {
		match := jsonObject.FindString(body)
		if match == "" {
			return nil, fmt.Errorf("extraction payload has no JSON object")
		}
		body = match
	}

	var raw rawBatch
	decoder := json.NewDecoder(strings.NewReader(body))
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding extraction payload: %w", err)
	}
	return raw.batch(), nil
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

type rawBatch struct {
	Characters    []rawCharacter `json:"characters"`
	WorldElements []rawWorld     `json:"world_elements"`
	Events        []rawEvent     `json:"events"`
	Scenes        []rawScene     `json:"scenes"`
}

type rawCharacter struct {
	Name        flexString `json:"name"`
	Role        flexString `json:"role"`
	Personality flexString `json:"personality"`
	Background  flexString `json:"background"`
}

type rawWorld struct {
	Name        flexString `json:"name"`
	Title       flexString `json:"title"`
	Category    flexString `json:"category"`
	Description flexString `json:"description"`
}

type rawEvent struct {
	Name           flexString `json:"name"`
	Title          flexString `json:"title"`
	Date           flexString `json:"date"`
	Description    flexString `json:"description"`
	Importance     flexString `json:"importance"`
	ExplicitEvents *bool      `json:"explicit_events"`
	Explicit       *bool      `json:"explicit"`
}

type rawScene struct {
	Name        flexString `json:"name"`
	Title       flexString `json:"title"`
	Description flexString `json:"description"`
}

func (r rawBatch) batch() *Batch {
	b := &Batch{
		Characters:    make([]entity.Character, 0, len(r.Characters)),
		WorldElements: make([]entity.WorldElement, 0, len(r.WorldElements)),
		Events:        make([]entity.TimelineEvent, 0, len(r.Events)),
		Scenes:        make([]entity.StoryboardScene, 0, len(r.Scenes)),
	}
	for _, c := range r.Characters {
		b.Characters = append(b.Characters, entity.Character{
			Name:        string(c.Name),
			Role:        string(c.Role),
			Personality: string(c.Personality),
			Background:  string(c.Background),
		})
	}
	for _, w := range r.WorldElements {
		b.WorldElements = append(b.WorldElements, entity.WorldElement{
			Title:       firstNonEmpty(w.Title, w.Name),
			Category:    string(w.Category),
			Description: string(w.Description),
		})
	}
	for _, e := range r.Events {
		explicit := false
		switch {
		case e.ExplicitEvents != nil:
			explicit = *e.ExplicitEvents
		case e.Explicit != nil:
			explicit = *e.Explicit
		}
		b.Events = append(b.Events, entity.TimelineEvent{
			Title:       firstNonEmpty(e.Title, e.Name),
			Date:        string(e.Date),
			Description: string(e.Description),
			Importance:  string(e.Importance),
			Explicit:    explicit,
		})
	}
	for _, s := range r.Scenes {
		b.Scenes = append(b.Scenes, entity.StoryboardScene{
			Title:       firstNonEmpty(s.Title, s.Name),
			Description: string(s.Description),
		})
	}
	return b
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if strings.TrimSpace(string(v)) != "" {
			return string(v)
		}
	}
	return ""
}

// flexString accepts the loosely typed values models produce: strings,
// numbers, booleans, null and lists of those.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = flexString(stringify(value))
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
