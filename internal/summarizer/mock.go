package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// MockCapability produces deterministic, content-free summaries. It exists
// for tests and for running the engine with no real summarizer configured
// (config.SummarizerConfig.Provider == "mock", the default).
type MockCapability struct{}

func (MockCapability) SummarizeEvents(_ context.Context, events []model.Event) (Summary, error) {
	primary := 0
	for _, ev := range events {
		if !ev.IsOverlay() {
			primary++
		}
	}
	return Summary{
		Title:   fmt.Sprintf("%d events", primary),
		Bullets: []string{fmt.Sprintf("Segment covering %d events", primary)},
	}, nil
}

func (MockCapability) SummarizeChildren(_ context.Context, children []Summary) (Summary, error) {
	titles := make([]string, 0, len(children))
	for _, c := range children {
		titles = append(titles, c.Title)
	}
	return Summary{
		Title:   fmt.Sprintf("Rollup of %d children", len(children)),
		Bullets: []string{strings.Join(titles, "; ")},
	}, nil
}
