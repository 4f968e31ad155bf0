// Package summarizer defines the abstract summarization capability
// (spec.md §4.4) and the retry wrapper the TOC builder and rollup jobs use
// around it. The capability is polymorphic over {api-backed, mock, local}
// implementations (spec.md §9); only mock and local ship here; an
// api-backed implementation is the embedding environment's job (spec.md
// §1: "the LLM summarizer backend... treated as a pluggable capability").
package summarizer

import (
	"context"

	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// Summary is the result of summarizing either a segment's events or a set
// of child summaries (spec.md §4.4).
type Summary struct {
	Title    string
	Bullets  []string
	Keywords []string
}

// Capability is the two-operation contract the engine depends on.
// Implementations may call out to a network LLM, so every method takes a
// context for cancellation and per-call timeouts (spec.md §5).
type Capability interface {
	// SummarizeEvents produces a concise summary of one segment's events.
	SummarizeEvents(ctx context.Context, events []model.Event) (Summary, error)
	// SummarizeChildren produces a rollup summary for a parent level from
	// its children's already-generated summaries.
	SummarizeChildren(ctx context.Context, children []Summary) (Summary, error)
}
