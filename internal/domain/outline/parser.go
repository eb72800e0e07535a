// Package outline turns the raw outline response of the language model into
// structured chapter outlines.
//
// Expected shape (one block per chapter, Chapter 0 is the hook placeholder):
//
//	---
//	Title: Refined title
//	Chapter 0: The Hook
//	(Hook to be written later).
//
//	Chapter 1: First chapter title
//	(Word Count: 250 words)
//	Concept: Free text up to the next chapter.
package outline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
)

var (
	chapterStartRe = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?Chapter (\d+):`)
	chapterHeadRe  = regexp.MustCompile(`^[ \t]*(?:\*\*)?Chapter (\d+):[ \t]*(.*)`)
	wordCountRe    = regexp.MustCompile(`\((?:Target )?Word Count:\s*(\d+)`)
	conceptRe      = regexp.MustCompile(`(?s)Concept:\s*(.*)`)
	titleRe        = regexp.MustCompile(`^(?:\*\*)?Title:(?:\*\*)?[ \t]*(.*)`)
)

// Result is the structured form of an outline response.
type Result struct {
	RefinedTitle string
	Outlines     []model.ChapterOutline
}

// Parser is stateless apart from its logger.
type Parser struct {
	log *zerolog.Logger
}

func NewParser(logger *zerolog.Logger) *Parser {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Parser{log: logger}
}

// Parse extracts the refined title and chapter outlines. Malformed chapter
// blocks are dropped with a warning; the only failure is non-empty input that
// yields no chapter at all.
func (p *Parser) Parse(raw string) (Result, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(strings.TrimPrefix(text, "---"))
	text = strings.TrimSpace(strings.TrimSuffix(text, "---"))

	var res Result
	if text == "" {
		return res, nil
	}

	if m := titleRe.FindStringSubmatch(firstLine(text)); m != nil {
		res.RefinedTitle = strings.TrimSpace(strings.Trim(m[1], "*"))
	}

	for _, block := range splitBlocks(text) {
		o, ok := parseBlock(block)
		if !ok {
			if isHookPlaceholder(block) {
				continue
			}
			p.log.Warn().Str("block", preview(block)).Msg("could not fully parse a chapter block")
			continue
		}
		res.Outlines = append(res.Outlines, o)
	}

	if len(res.Outlines) == 0 {
		return Result{}, &domain.ParseError{Reason: "no chapter blocks matched the expected format"}
	}
	return res, nil
}

// Parse uses a parser without logging.
func Parse(raw string) (Result, error) {
	return NewParser(nil).Parse(raw)
}

// splitBlocks cuts the text at every line that starts a chapter. Text before
// the first chapter (the title line) is discarded.
func splitBlocks(text string) []string {
	idx := chapterStartRe.FindAllStringIndex(text, -1)
	blocks := make([]string, 0, len(idx))
	for i, loc := range idx {
		end := len(text)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		blocks = append(blocks, strings.TrimSpace(text[loc[0]:end]))
	}
	return blocks
}

func parseBlock(block string) (model.ChapterOutline, bool) {
	head := chapterHeadRe.FindStringSubmatch(firstLine(block))
	wc := wordCountRe.FindStringSubmatch(block)
	concept := conceptRe.FindStringSubmatch(block)
	if head == nil || wc == nil || concept == nil {
		return model.ChapterOutline{}, false
	}
	id, err := strconv.Atoi(head[1])
	if err != nil {
		return model.ChapterOutline{}, false
	}
	words, err := strconv.Atoi(wc[1])
	if err != nil {
		return model.ChapterOutline{}, false
	}
	return model.ChapterOutline{
		ID:              id,
		Title:           strings.TrimSpace(strings.Trim(strings.TrimSpace(head[2]), "*")),
		ConceptSummary:  strings.TrimSpace(concept[1]),
		TargetWordCount: words,
	}, true
}

func isHookPlaceholder(block string) bool {
	head := chapterHeadRe.FindStringSubmatch(firstLine(block))
	return head != nil && head[1] == strconv.Itoa(model.HookOutlineID)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func preview(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
