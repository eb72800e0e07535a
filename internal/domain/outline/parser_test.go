package outline

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"longform-scriptgen/internal/domain"
)

func wellFormed(n int) string {
	var b strings.Builder
	b.WriteString("---\nTitle: The Cabin She Tore Down\n\nChapter 0: The Hook\n(Hook to be written later).\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Chapter %d: Title %d\n(Word Count: %d words)\nConcept: Concept for chapter %d.\nIt spans two lines.\n\n", i, i, 100*i, i)
	}
	b.WriteString("---")
	return b.String()
}

func TestParse_WellFormed(t *testing.T) {
	res, err := Parse(wellFormed(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RefinedTitle != "The Cabin She Tore Down" {
		t.Errorf("refined title = %q", res.RefinedTitle)
	}
	if len(res.Outlines) != 5 {
		t.Fatalf("want 5 outlines, got %d", len(res.Outlines))
	}
	for i, o := range res.Outlines {
		if o.ID != i+1 {
			t.Errorf("outline %d has id %d", i, o.ID)
		}
		if o.Title != fmt.Sprintf("Title %d", i+1) {
			t.Errorf("outline %d title = %q", i, o.Title)
		}
		if o.TargetWordCount != 100*(i+1) {
			t.Errorf("outline %d word count = %d", i, o.TargetWordCount)
		}
		if !strings.HasPrefix(o.ConceptSummary, fmt.Sprintf("Concept for chapter %d.", i+1)) ||
			!strings.HasSuffix(o.ConceptSummary, "It spans two lines.") {
			t.Errorf("outline %d concept = %q", i, o.ConceptSummary)
		}
		if strings.Contains(o.ConceptSummary, "---") {
			t.Errorf("outline %d concept kept trailing marker: %q", i, o.ConceptSummary)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "   \n ", "---"} {
		res, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error %v", in, err)
		}
		if len(res.Outlines) != 0 || res.RefinedTitle != "" {
			t.Fatalf("Parse(%q) = %+v", in, res)
		}
	}
}

func TestParse_NoChapterBlocks(t *testing.T) {
	_, err := Parse("Title: Something\nHere is a story about a cabin without chapters.")
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_OnlyHookPlaceholder(t *testing.T) {
	_, err := Parse("Chapter 0: The Hook\n(Hook to be written later).")
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestParse_DropsMalformedBlocks(t *testing.T) {
	in := "Title: T\nChapter 1: Good\n(Word Count: 200 words)\nConcept: ok\n\n" +
		"Chapter 2: Missing count\nConcept: nope\n\n" +
		"Chapter 3: Good again\n(Word Count: 300 words)\nConcept: fine"
	res, err := Parse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Outlines) != 2 || res.Outlines[0].ID != 1 || res.Outlines[1].ID != 3 {
		t.Fatalf("outlines = %+v", res.Outlines)
	}
}

func TestParse_MissingTitleLine(t *testing.T) {
	res, err := Parse("Chapter 1: Only\n(Word Count: 150 words)\nConcept: c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RefinedTitle != "" {
		t.Fatalf("expected empty refined title, got %q", res.RefinedTitle)
	}
}

func TestParse_MarkdownEmphasis(t *testing.T) {
	res, err := Parse("**Title:** Bold\n**Chapter 1: Emphasised**\n(Word Count: 150 words)\nConcept: c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RefinedTitle != "Bold" || res.Outlines[0].Title != "Emphasised" {
		t.Fatalf("got %+v", res)
	}
}
