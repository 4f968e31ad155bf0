package summarizer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// LocalCapability is a heuristic, no-network summarizer: it extracts
// representative sentences and frequent terms instead of generating new
// prose. It is the "local" variant spec.md §9 calls for alongside
// "api-backed" and "mock" — useful when no LLM backend is configured but a
// more useful summary than MockCapability's placeholder text is wanted.
type LocalCapability struct {
	// MaxBullets bounds how many representative sentences are extracted
	// per summary. Zero means the package default (5).
	MaxBullets int
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9']+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "is": true,
	"are": true, "was": true, "were": true, "to": true, "of": true, "in": true,
	"on": true, "it": true, "i": true, "you": true, "we": true, "for": true,
	"that": true, "this": true, "with": true, "as": true, "at": true, "be": true,
}

func (l LocalCapability) maxBullets() int {
	if l.MaxBullets > 0 {
		return l.MaxBullets
	}
	return 5
}

// SummarizeEvents picks up to maxBullets non-overlay event texts (longest
// first, a crude proxy for "most substantive") as bullets, and the most
// frequent non-stopword terms across those same non-overlay events' text as
// keywords.
func (l LocalCapability) SummarizeEvents(_ context.Context, events []model.Event) (Summary, error) {
	var primary []model.Event
	for _, ev := range events {
		if !ev.IsOverlay() && strings.TrimSpace(ev.Text) != "" {
			primary = append(primary, ev)
		}
	}

	sorted := make([]model.Event, len(primary))
	copy(sorted, primary)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Text) > len(sorted[j].Text) })

	n := l.maxBullets()
	if n > len(sorted) {
		n = len(sorted)
	}
	bullets := make([]string, 0, n)
	for _, ev := range sorted[:n] {
		bullets = append(bullets, truncate(ev.Text, 160))
	}

	keywords := topKeywords(primary, 8)

	title := "Untitled segment"
	if len(bullets) > 0 {
		title = truncate(bullets[0], 60)
	}

	return Summary{Title: title, Bullets: bullets, Keywords: keywords}, nil
}

// SummarizeChildren concatenates child bullets and re-extracts keywords
// from the pooled text, producing a coarser rollup summary.
func (l LocalCapability) SummarizeChildren(_ context.Context, children []Summary) (Summary, error) {
	var allBullets []string
	var allText strings.Builder
	for _, c := range children {
		allBullets = append(allBullets, c.Bullets...)
		allText.WriteString(c.Title)
		allText.WriteString(" ")
		for _, b := range c.Bullets {
			allText.WriteString(b)
			allText.WriteString(" ")
		}
	}

	n := l.maxBullets()
	if n > len(allBullets) {
		n = len(allBullets)
	}

	title := "Rollup summary"
	if len(children) > 0 {
		title = truncate(children[0].Title, 60)
	}

	return Summary{
		Title:    title,
		Bullets:  allBullets[:n],
		Keywords: topKeywordsFromText(allText.String(), 8),
	}, nil
}

func topKeywords(events []model.Event, n int) []string {
	var sb strings.Builder
	for _, ev := range events {
		sb.WriteString(ev.Text)
		sb.WriteString(" ")
	}
	return topKeywordsFromText(sb.String(), n)
}

func topKeywordsFromText(text string, n int) []string {
	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if stopwords[w] || len(w) < 3 {
			continue
		}
		counts[w]++
	}

	type kv struct {
		word  string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for w, c := range counts {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})

	if n > len(kvs) {
		n = len(kvs)
	}
	out := make([]string, 0, n)
	for _, e := range kvs[:n] {
		out = append(out, e.word)
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
