package extract

import (
	"fmt"
	"strings"
)

const (
	// DefaultTemperature keeps model output close to the source text.
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2000
)

const systemPrompt = `You are a fiction analyst. Read the story text and extract, in as much detail as the text supports:
1. Characters: name, role, personality, background.
2. World elements: magic, technology, social structure, culture, rules, history, politics, economy, environment.
3. Timeline events: date, title, description, importance, and whether the date is stated verbatim in the text.
4. Storyboard scenes: title and a short description of each scene.

Return JSON only. No code fences, explanations or comments.`

const userPromptTemplate = `Analyze the following story text for story %q:

%s

Return the result in exactly this JSON shape:
{
  "characters": [
    {"name": "character name", "role": "role", "personality": "personality", "background": "background"}
  ],
  "world_elements": [
    {"title": "element name", "category": "category", "description": "description"}
  ],
  "events": [
    {"title": "title", "date": "date", "description": "description", "importance": "importance", "explicit_events": false}
  ],
  "scenes": [
    {"title": "scene title", "description": "description"}
  ]
}
Return JSON only. No code fences, explanations or comments.`

// SystemPrompt is the instruction shared by the model-backed providers.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt embeds the story text into the extraction request.
func UserPrompt(storyID, text string) string {
	return fmt.Sprintf(userPromptTemplate, storyID, strings.TrimSpace(text))
}

// CheckInput rejects text no provider can extract anything from.
func CheckInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return Permanent(fmt.Errorf("story text is empty"))
	}
	return nil
}
