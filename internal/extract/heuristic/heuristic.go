// Package heuristic extracts candidates without a model, using keyword and
// pattern matching. Output is rough but deterministic and works offline.
package heuristic

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/extract"
)

var (
	koreanName  = regexp.MustCompile(`[가-힣]{2,4}\s*(?:씨|님|군|양)?`)
	englishName = regexp.MustCompile(`[A-Z][a-z]+\s+[A-Z][a-z]+`)
	sentenceEnd = regexp.MustCompile(`[.!?]`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}년\s*\d{1,2}월\s*\d{1,2}일`),
		regexp.MustCompile(`\d{1,2}월\s*\d{1,2}일`),
		regexp.MustCompile(`\d{1,2}일`),
	}
)

var roleKeywords = []string{
	"주인공", "히로인", "조연", "악역", "라이벌", "멘토", "친구", "가족",
	"protagonist", "hero", "heroine", "villain", "rival", "mentor", "friend", "family",
}

var worldKeywords = []string{
	"마법", "기술", "문명", "국가", "도시", "마을", "학교", "회사", "조직",
	"magic", "technology", "civilization", "country", "city", "village", "school", "company", "organization",
}

var timeKeywords = []string{
	"년", "월", "일", "시", "분", "초", "아침", "점심", "저녁", "밤",
	"year", "month", "day", "hour", "minute", "second", "morning", "afternoon", "evening", "night",
}

var categories = []struct {
	name     string
	keywords []string
}{
	{name: "마법", keywords: []string{"마법", "magic"}},
	{name: "기술", keywords: []string{"기술", "technology"}},
	{name: "정치", keywords: []string{"국가", "country"}},
}

// roleWindow is how many bytes around a name are searched for role words.
const roleWindow = 50

type Extractor struct{}

var _ extract.Extractor = Extractor{}

func New() Extractor {
	return Extractor{}
}

func (Extractor) Extract(ctx context.Context, _ string, text string) (*extract.Batch, error) {
	if err := extract.CheckInput(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sentences := splitSentences(text)
	return &extract.Batch{
		Characters:    characters(text, sentences),
		WorldElements: worldElements(sentences),
		Events:        events(sentences),
		Scenes:        []entity.StoryboardScene{},
	}, nil
}

func splitSentences(text string) []string {
	parts := sentenceEnd.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func characters(text string, sentences []string) []entity.Character {
	seen := make(map[string]bool)
	var names []string
	for _, pattern := range []*regexp.Regexp{koreanName, englishName} {
		for _, match := range pattern.FindAllString(text, -1) {
			name := strings.TrimSpace(match)
			if utf8.RuneCountInString(name) < 2 || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}

	out := make([]entity.Character, 0, len(names))
	for _, name := range names {
		out = append(out, entity.Character{
			Name:       name,
			Role:       role(text, name),
			Background: firstSentenceWith(sentences, name),
		})
	}
	return out
}

func role(text, name string) string {
	idx := strings.Index(text, name)
	if idx < 0 {
		return ""
	}
	start := max(0, idx-roleWindow)
	end := min(len(text), idx+len(name)+roleWindow)
	window := strings.ToValidUTF8(text[start:end], "")
	for _, keyword := range roleKeywords {
		if strings.Contains(window, keyword) {
			return keyword
		}
	}
	return ""
}

func firstSentenceWith(sentences []string, name string) string {
	for _, sentence := range sentences {
		if strings.Contains(sentence, name) {
			return sentence
		}
	}
	return ""
}

func worldElements(sentences []string) []entity.WorldElement {
	var out []entity.WorldElement
	for _, sentence := range sentences {
		if !containsAny(strings.ToLower(sentence), worldKeywords) {
			continue
		}
		out = append(out, entity.WorldElement{
			Title:       strings.Fields(sentence)[0],
			Category:    category(sentence),
			Description: sentence,
		})
	}
	return out
}

func category(sentence string) string {
	lower := strings.ToLower(sentence)
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return "기타"
}

func events(sentences []string) []entity.TimelineEvent {
	var out []entity.TimelineEvent
	for _, sentence := range sentences {
		if !containsAny(strings.ToLower(sentence), timeKeywords) {
			continue
		}
		date := findDate(sentence)
		out = append(out, entity.TimelineEvent{
			Date:        date,
			Description: sentence,
			Explicit:    date != "",
		})
	}
	return out
}

func findDate(sentence string) string {
	for _, pattern := range datePatterns {
		if match := pattern.FindString(sentence); match != "" {
			return match
		}
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
