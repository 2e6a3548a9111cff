package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chapter is one story source file. Frontmatter is optional; without it the
// whole file is the body.
type Chapter struct {
	Frontmatter map[string]any
	Story       string
	Title       string
	Order       int
	Tags        []string
	Body        string
	SourceFile  string
}

var (
	ErrUnterminatedFrontmatter = errors.New("frontmatter is missing its closing marker")
	ErrInvalidYAML             = errors.New("invalid YAML in frontmatter")
	ErrEmptyBody               = errors.New("chapter has no text")
)

func ParseFile(path string) (*Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	chapter, err := Parse(data)
	if err != nil {
		return nil, err
	}
	chapter.SourceFile = path
	return chapter, nil
}

func Parse(content []byte) (*Chapter, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return newChapter(nil, string(trimmed))
	}

	rest := trimmed[len("---\n"):]
	end := closingMarker(rest)
	if end == -1 {
		return nil, ErrUnterminatedFrontmatter
	}

	yamlBytes := rest[:end]
	body := string(bytes.TrimPrefix(rest[end:], []byte("---")))

	var frontmatter map[string]any
	if err := yaml.Unmarshal(yamlBytes, &frontmatter); err != nil {
		return nil, ErrInvalidYAML
	}
	return newChapter(frontmatter, body)
}

// closingMarker finds a "---" line, allowing it to end the file.
func closingMarker(rest []byte) int {
	if bytes.HasPrefix(rest, []byte("---\n")) || bytes.Equal(rest, []byte("---")) {
		return 0
	}
	if idx := bytes.Index(rest, []byte("\n---\n")); idx != -1 {
		return idx + 1
	}
	if bytes.HasSuffix(rest, []byte("\n---")) {
		return len(rest) - len("---")
	}
	return -1
}

func newChapter(frontmatter map[string]any, body string) (*Chapter, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	chapter := &Chapter{Frontmatter: frontmatter, Body: body}
	if frontmatter == nil {
		return chapter, nil
	}

	chapter.Story = stringValue(frontmatter["story"])
	chapter.Title = stringValue(frontmatter["title"])

	order, err := parseOrder(frontmatter["chapter"])
	if err != nil {
		return nil, err
	}
	chapter.Order = order

	tags, err := parseTags(frontmatter["tags"])
	if err != nil {
		return nil, err
	}
	chapter.Tags = tags
	return chapter, nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return fmt.Sprint(v)
	}
	return ""
}

func parseOrder(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("chapter must be a number")
	}
}

func parseTags(value any) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("tags must be strings")
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			tags = append(tags, s)
		}
		if len(tags) == 0 {
			return nil, nil
		}
		return tags, nil
	default:
		return nil, fmt.Errorf("tags must be string or list of strings")
	}
}
