package segment

import (
	"sync"

	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// Registry locates or creates the open segment Builder for a session
// (spec.md §4.8 step 1: "locate or create the session's open segment
// builder, feed the event, possibly emit a segment"). This is the same
// map-plus-mutex, get-or-create shape the teacher uses for its in-memory
// session manager, repointed at per-session segmentation state instead of
// chat history.
type Registry struct {
	mu       sync.Mutex
	cfg      config.SegmentationConfig
	counter  TokenCounter
	builders map[string]*Builder
}

// NewRegistry creates a Registry that builds segments using cfg and
// counter for every session it sees.
func NewRegistry(cfg config.SegmentationConfig, counter TokenCounter) *Registry {
	return &Registry{
		cfg:      cfg,
		counter:  counter,
		builders: make(map[string]*Builder),
	}
}

// GetOrCreate returns the Builder for sessionID, creating one if this is
// the first event seen for that session.
func (r *Registry) GetOrCreate(sessionID string) *Builder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.builders[sessionID]; ok {
		return b
	}
	b := NewBuilder(r.cfg, r.counter)
	r.builders[sessionID] = b
	return b
}

// FlushAll emits every in-progress segment across all sessions, keyed by
// session id. Used on graceful shutdown so no partially-accumulated segment
// is silently lost between process restarts (events remain durable in the
// events partition regardless; this only affects how quickly they surface
// in the TOC).
func (r *Registry) FlushAll() map[string]*SegmentEmission {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*SegmentEmission)
	for sessionID, b := range r.builders {
		if seg := b.Flush(); seg != nil {
			out[sessionID] = &SegmentEmission{SessionID: sessionID, Segment: seg}
		}
	}
	return out
}

// SegmentEmission pairs a freshly emitted Segment with the session it came
// from, since model.Segment itself carries no session identifier.
type SegmentEmission struct {
	SessionID string
	Segment   *model.Segment
}
