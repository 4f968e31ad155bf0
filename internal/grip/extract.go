// Package grip implements the grip extractor (spec.md §4.5): a heuristic,
// term-overlap-scored pass over a segment's events that anchors each
// summary bullet back to the events it was drawn from.
package grip

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/agentmemory/internal/idgen"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// Source names this component in every Grip it produces (spec.md §4.5
// step 4: "source names this component").
const Source = "grip_extractor"

// ExcerptMaxChars bounds the excerpt text copied from the highest-scoring
// event (spec.md §4.5 step 4: "truncated to a short bound").
const ExcerptMaxChars = 240

var termRe = regexp.MustCompile(`[a-z0-9']+`)

// terms tokenizes text into lowercase, punctuation-stripped terms
// (spec.md §4.5 step 1).
func terms(text string) []string {
	return termRe.FindAllString(strings.ToLower(text), -1)
}

// ExtractForBullet produces zero or more grips for one bullet against the
// events of a segment, per spec.md §4.5. events must be in chronological
// order; nodeID is the segment node the grips are attached to.
func ExtractForBullet(bullet string, events []model.Event, nodeID string) []model.Grip {
	bulletTerms := termSet(terms(bullet))
	if len(bulletTerms) == 0 || len(events) == 0 {
		return nil
	}

	scores := make([]int, len(events))
	maxScore := 0
	for i, ev := range events {
		scores[i] = scoreEvent(ev.Text, bulletTerms)
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}
	if maxScore == 0 {
		return nil
	}

	start, end := maximalScoreRun(scores, maxScore)

	bestIdx := start
	for i := start; i <= end; i++ {
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}

	g := model.Grip{
		GripID:       idgen.NewGripID(events[start].TimestampMs),
		Excerpt:      truncate(events[bestIdx].Text, ExcerptMaxChars),
		EventIDStart: events[start].EventID,
		EventIDEnd:   events[end].EventID,
		TimestampMs:  events[start].TimestampMs,
		Source:       Source,
		TocNodeID:    nodeID,
	}
	return []model.Grip{g}
}

// ExtractAll runs ExtractForBullet over every bullet and flattens the
// result, which is how the TOC builder calls into this package (spec.md
// §4.6 step 3).
func ExtractAll(bullets []string, events []model.Event, nodeID string) []model.Grip {
	var out []model.Grip
	for _, b := range bullets {
		out = append(out, ExtractForBullet(b, events, nodeID)...)
	}
	return out
}

func termSet(ts []string) map[string]bool {
	set := make(map[string]bool, len(ts))
	for _, t := range ts {
		set[t] = true
	}
	return set
}

func scoreEvent(text string, bulletTerms map[string]bool) int {
	score := 0
	for _, t := range terms(text) {
		if bulletTerms[t] {
			score++
		}
	}
	return score
}

// maximalScoreRun finds the contiguous run of events whose score equals
// maxScore that has the largest total score, i.e. the run most densely
// packed with the highest-scoring events (spec.md §4.5 step 3: "contiguous
// maximal-score event run"). Ties for the densest run are broken by the
// earliest starting index.
func maximalScoreRun(scores []int, maxScore int) (start, end int) {
	bestStart, bestEnd, bestLen := -1, -1, 0
	i := 0
	for i < len(scores) {
		if scores[i] != maxScore {
			i++
			continue
		}
		j := i
		for j < len(scores) && scores[j] == maxScore {
			j++
		}
		runLen := j - i
		if runLen > bestLen {
			bestLen = runLen
			bestStart, bestEnd = i, j-1
		}
		i = j
	}
	if bestStart == -1 {
		return 0, 0
	}
	return bestStart, bestEnd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
