package content

import (
	"fmt"
	"strings"

	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
)

// WordsPerMinute converts a narration duration into a word budget.
const WordsPerMinute = 150

const systemWriter = "You write long-form narration scripts for video. Use plain, conversational language " +
	"that reads well aloud. Never add greetings, notes or commentary outside the requested output."

func outlinePrompt(title, concept string, minutes int) string {
	var b strings.Builder
	b.WriteString("## Task: outline\n")
	fmt.Fprintf(&b, "Working title: %s\nConcept: %s\n", title, concept)
	fmt.Fprintf(&b, "Target length: %d minutes, about %d words in total.\n\n", minutes, minutes*WordsPerMinute)
	b.WriteString(`Plan the story as 5 to 12 chapters. Put the conflict up front, reveal the protagonist's advantage early,
spend most of the words on the build-up, then deliver the payoff and a short resolution.
Distribute the word budget across the chapters.

Reply in exactly this format and nothing else:
---
Title: <a stronger version of the working title>
Chapter 0: The Hook
(Hook to be written later).

Chapter 1: <title>
(Word Count: <number> words)
Concept: <two or three plain sentences>

Chapter 2: <title>
(Word Count: <number> words)
Concept: <two or three plain sentences>
---
`)
	return b.String()
}

func hookPrompt(rawOutline string, budget int) string {
	return fmt.Sprintf(`## Task: hook
Write the opening hook for the story outlined below, at most %d words.
Start in the middle of the most dramatic moment, hint at the payoff without revealing it,
and end on a line that makes the viewer keep watching. Reply with the hook text only.

Outline:
%s
`, budget, rawOutline)
}

func chapterPrompt(rawOutline string, chapters []model.ChapterOutline) string {
	var b strings.Builder
	b.WriteString("## Task: chapters\n")
	b.WriteString("Full outline for context:\n")
	b.WriteString(rawOutline)
	b.WriteString("\n\nWrite the complete narration for these chapters, in order:\n")
	for _, c := range chapters {
		fmt.Fprintf(&b, "- Chapter %d: %s (Word Count: %d words)\n  Concept: %s\n", c.ID, c.Title, c.TargetWordCount, c.ConceptSummary)
	}
	fmt.Fprintf(&b, `
Rules:
- Hit each chapter's word count closely.
- Do not write chapter headings or numbers, only the narration.
- Put a line containing only %s between two chapters. Do not put it before the first or after the last chapter.
`, adapter.ChapterDelimiter)
	return b.String()
}

func thumbnailIdeasPrompt(title, hook string) string {
	return fmt.Sprintf(`## Task: thumbnail ideas
Video title: %s
Opening hook:
%s

Propose one thumbnail. Give a detailed image generation prompt (subject, emotion, setting, lighting,
16:9 composition, photorealistic) and a short overlay text of at most five words.
`, title, hook)
}

func titlePackagesPrompt(originalTitle, script string) string {
	return fmt.Sprintf(`## Task: title packages
Original title: %s

Write five alternative packages for publishing this video. Each package has a curiosity-driven title
under 100 characters, a two paragraph description, and five to eight hashtags starting with #.

Script:
%s
`, originalTitle, script)
}

func thumbnailImagePrompt(req adapter.ThumbnailImageRequest) string {
	p := strings.TrimSpace(req.Prompt)
	if req.BaseImage != "" {
		p = "Edit the provided image: " + p
	}
	if req.AddTextOverlay && strings.TrimSpace(req.TextOverlay) != "" {
		p += fmt.Sprintf(". Add the text %q in large, bold, high-contrast letters that are easy to read on a phone.", strings.TrimSpace(req.TextOverlay))
	} else {
		p += ". Do not render any text in the image."
	}
	return p
}

var thumbnailIdeasSchema = &adapter.Schema{
	Type: "object",
	Properties: map[string]*adapter.Schema{
		"image_generation_prompt": {Type: "string", Description: "Detailed prompt for an image model."},
		"text_on_thumbnail":       {Type: "string", Description: "Overlay text, at most five words."},
	},
	Required: []string{"image_generation_prompt", "text_on_thumbnail"},
}

var titlePackagesSchema = &adapter.Schema{
	Type: "array",
	Items: &adapter.Schema{
		Type: "object",
		Properties: map[string]*adapter.Schema{
			"title":       {Type: "string"},
			"description": {Type: "string"},
			"hashtags":    {Type: "array", Items: &adapter.Schema{Type: "string"}},
		},
		Required: []string{"title", "description", "hashtags"},
	},
}
