package citation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/WessleyAI/docsearch/engine/domain"
)

var testPage = domain.Page{
	PageID:   "77",
	SpaceKey: "OPS",
	Title:    "Agent Runbook",
	URL:      "https://wiki.example.com/pages/77",
}

func testChunk(text string) domain.Chunk {
	return domain.Chunk{
		ChunkID:         "77-3",
		PageID:          "77",
		Content:         text,
		OriginalContent: text,
		ContextPath:     []string{"OPS", "Agent Runbook", "Restarting the Agent"},
		HeadingContext:  "Restarting the Agent",
	}
}

func TestExtract_QuotableSentences(t *testing.T) {
	text := "Short one. " +
		"To restart the monitoring agent run the restart command on each host. " +
		"Unrelated trivia about office plants goes here for padding purposes. " +
		"The agent reports its status to the central dashboard after a restart."
	cits := New().Extract(testChunk(text), testPage, "restart the agent", 0.8)
	if len(cits) != 2 {
		t.Fatalf("expected 2 citations, got %d: %+v", len(cits), cits)
	}
	for _, c := range cits {
		if !strings.Contains(strings.ToLower(c.Quote), "agent") {
			t.Errorf("unexpected quote %q", c.Quote)
		}
		if c.ChunkID != "77-3" || c.SpaceKey != "OPS" || c.PageTitle != "Agent Runbook" {
			t.Errorf("provenance not copied: %+v", c)
		}
		if c.PageURL != testPage.URL+"#restarting-the-agent" {
			t.Errorf("page url = %q", c.PageURL)
		}
		if c.Section == nil || *c.Section != "Restarting the Agent" {
			t.Errorf("section = %v", c.Section)
		}
	}
}

func TestExtract_SortedAndBounded(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString("The deploy pipeline pushes the release to every cluster region")
		b.WriteString(strings.Repeat(" again", i))
		b.WriteString(". ")
	}
	cits := New().Extract(testChunk(b.String()), testPage, "deploy pipeline release", 0.9)
	if len(cits) != DefaultMaxCitations {
		t.Fatalf("expected %d citations, got %d", DefaultMaxCitations, len(cits))
	}
	for i, c := range cits {
		if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
			t.Errorf("confidence out of range: %v", c.ConfidenceScore)
		}
		if i > 0 && cits[i-1].ConfidenceScore < c.ConfidenceScore {
			t.Errorf("citations not sorted at %d", i)
		}
	}

	if got := New(WithMaxCitations(1)).Extract(testChunk(b.String()), testPage, "deploy pipeline", 0.9); len(got) != 1 {
		t.Errorf("expected 1 citation, got %d", len(got))
	}
	if got := New().ExtractN(testChunk(b.String()), testPage, "deploy pipeline", 0.9, 0); got != nil {
		t.Errorf("expected no citations for limit 0, got %d", len(got))
	}
	if got := New().ExtractN(testChunk(b.String()), testPage, "deploy pipeline", 0.9, 10); len(got) != DefaultMaxCitations {
		t.Errorf("limit must not exceed the configured maximum, got %d", len(got))
	}
}

func TestExtract_LengthBounds(t *testing.T) {
	long := "The agent " + strings.Repeat("really ", 80) + "restarts."
	short := "Agent restarts."
	cits := New().Extract(testChunk(short+" "+long), testPage, "agent restarts", 1)
	if len(cits) != 0 {
		t.Fatalf("expected no citations outside [30,500] chars, got %d", len(cits))
	}
}

func TestExtract_NoMatch(t *testing.T) {
	text := "Quarterly budgets are reviewed by finance every spring season."
	if cits := New().Extract(testChunk(text), testPage, "kubernetes", 0.9); len(cits) != 0 {
		t.Fatalf("expected no citations, got %+v", cits)
	}
}

func TestExtract_StopWordsDoNotCount(t *testing.T) {
	text := "Quarterly budgets are reviewed by finance every spring season."
	if cits := New().Extract(testChunk(text), testPage, "who are by the", 0.9); len(cits) != 0 {
		t.Fatalf("stop-word overlap should not make a sentence quotable: %+v", cits)
	}
}

func TestExtract_ContextWindows(t *testing.T) {
	pre := strings.Repeat("x", 150) + "."
	target := "The agent restart procedure takes about five minutes."
	post := strings.Repeat("y", 150) + "."
	text := pre + " " + target + " " + post

	cits := New().Extract(testChunk(text), testPage, "agent restart", 0.5)
	var got *domain.Citation
	for i := range cits {
		if cits[i].Quote == target {
			got = &cits[i]
		}
	}
	if got == nil {
		t.Fatalf("target sentence not cited: %+v", cits)
	}
	if !strings.HasPrefix(got.ContextBefore, ellipsis) {
		t.Errorf("truncated context_before should start with ellipsis: %q", got.ContextBefore)
	}
	if !strings.HasSuffix(got.ContextAfter, ellipsis) {
		t.Errorf("truncated context_after should end with ellipsis: %q", got.ContextAfter)
	}

	short := "Intro. " + target + " Done."
	cits = New().Extract(testChunk(short), testPage, "agent restart", 0.5)
	if len(cits) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(cits))
	}
	if cits[0].ContextBefore != "Intro." || cits[0].ContextAfter != "Done." {
		t.Errorf("unexpected context %q / %q", cits[0].ContextBefore, cits[0].ContextAfter)
	}
}

func TestSurrounding_CountsCharacters(t *testing.T) {
	before := strings.Repeat("é", 150)
	after := strings.Repeat("ü", 150)
	quote := "Restart the agent before checking logs."
	b, a := surrounding(before+quote+after, quote)
	if n := utf8.RuneCountInString(b); n != contextChars+1 {
		t.Fatalf("before has %d runes, want %d plus ellipsis", n, contextChars)
	}
	if n := utf8.RuneCountInString(a); n != contextChars+1 {
		t.Fatalf("after has %d runes, want %d plus ellipsis", n, contextChars)
	}
	if !strings.HasPrefix(b, ellipsis) || !strings.HasSuffix(a, ellipsis) {
		t.Fatalf("missing ellipsis: %q / %q", b, a)
	}

	b, a = surrounding("Kurz: "+quote+" Ende.", quote)
	if b != "Kurz:" || a != "Ende." {
		t.Fatalf("short context should be untouched, got %q / %q", b, a)
	}
}

func TestExtract_UsesOriginalContent(t *testing.T) {
	c := testChunk("normalized text that does not matter here at all")
	c.OriginalContent = "The   agent restart is scheduled nightly by cron."
	cits := New().Extract(c, testPage, "agent restart", 0.5)
	if len(cits) != 1 || cits[0].Quote != c.OriginalContent {
		t.Fatalf("expected verbatim quote from original content, got %+v", cits)
	}
}

func TestSection(t *testing.T) {
	c := domain.Chunk{ContextPath: []string{"OPS", "Title", "Install", "Linux"}}
	if s := Section(c); s == nil || *s != "Linux" {
		t.Errorf("expected Linux, got %v", s)
	}
	c = domain.Chunk{ContextPath: []string{"OPS", "Title"}}
	if s := Section(c); s != nil {
		t.Errorf("expected nil section, got %q", *s)
	}
}

func TestAnchorAndURL(t *testing.T) {
	tests := []struct{ heading, want string }{
		{"Restarting the Agent", "restarting-the-agent"},
		{"FAQ: What's new?", "faq-whats-new"},
		{"  Step 2 - Deploy  ", "step-2---deploy"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Anchor(tt.heading); got != tt.want {
			t.Errorf("Anchor(%q) = %q, want %q", tt.heading, got, tt.want)
		}
	}
	if got := PageURL("https://x/p", ""); got != "https://x/p" {
		t.Errorf("bare url expected, got %q", got)
	}
	if got := PageURL("https://x/p", "!!!"); got != "https://x/p" {
		t.Errorf("empty anchor should not be appended, got %q", got)
	}
}

func TestSimilarityAndConfidence(t *testing.T) {
	if s := Similarity("agent restart", "agent restart"); s != 1 {
		t.Errorf("identical strings: %v", s)
	}
	if s := Similarity("abc", "xyz"); s != 0 {
		t.Errorf("disjoint strings: %v", s)
	}
	if c := Confidence(1, 1, 1000); c != 1 {
		t.Errorf("max confidence = %v", c)
	}
	if c := Confidence(0, 0, 0); c != 0 {
		t.Errorf("min confidence = %v", c)
	}
	if c := Confidence(2, 2, 1000); c != 1 {
		t.Errorf("confidence not clamped: %v", c)
	}
	want := 0.5*0.6 + 0.3*0.5 + 0.2*0.5
	if c := Confidence(0.6, 0.5, 100); c < want-1e-9 || c > want+1e-9 {
		t.Errorf("confidence = %v, want %v", c, want)
	}
}
