package burst

import (
	"sync"

	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/ring"
)

var (
	_ ring.EvictionHandler = OldestFirstPolicy{}
	_ ring.EvictionHandler = (*LowestScorePolicy)(nil)
)

// OldestFirstPolicy always evicts the oldest frame.
type OldestFirstPolicy struct{}

// SelectVictim returns the oldest candidate.
func (OldestFirstPolicy) SelectVictim(candidates []frame.Timestamp) frame.Timestamp {
	return candidates[0]
}

func (OldestFirstPolicy) OnFrameInserted(frame.Timestamp, *frame.Metadata)     {}
func (OldestFirstPolicy) OnFrameDropped(frame.Timestamp)                       {}
func (OldestFirstPolicy) OnMetadataAvailable(frame.Timestamp, *frame.Metadata) {}

// LowestScorePolicy evicts the frame with the lowest numeric score under a
// metadata key, such as frame.KeySharpness. Frames without a score are kept
// until one arrives. If no candidate is scored the oldest is evicted, and
// ties go to the older frame.
type LowestScorePolicy struct {
	key    frame.Key
	mu     sync.Mutex
	scores map[frame.Timestamp]float64
}

// NewLowestScorePolicy creates a policy scoring frames by key.
func NewLowestScorePolicy(key frame.Key) *LowestScorePolicy {
	return &LowestScorePolicy{
		key:    key,
		scores: make(map[frame.Timestamp]float64),
	}
}

// SelectVictim returns the lowest scored candidate.
func (p *LowestScorePolicy) SelectVictim(candidates []frame.Timestamp) frame.Timestamp {
	p.mu.Lock()
	defer p.mu.Unlock()

	victim := candidates[0]
	found := false
	var lowest float64
	for _, ts := range candidates {
		score, ok := p.scores[ts]
		if !ok {
			continue
		}
		if !found || score < lowest {
			victim, lowest, found = ts, score, true
		}
	}
	return victim
}

// OnFrameInserted records the frame's score if its metadata is present.
func (p *LowestScorePolicy) OnFrameInserted(ts frame.Timestamp, md *frame.Metadata) {
	p.record(ts, md)
}

// OnFrameDropped forgets the frame.
func (p *LowestScorePolicy) OnFrameDropped(ts frame.Timestamp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.scores, ts)
}

// OnMetadataAvailable records the frame's score.
func (p *LowestScorePolicy) OnMetadataAvailable(ts frame.Timestamp, md *frame.Metadata) {
	p.record(ts, md)
}

// Score returns the recorded score for ts.
func (p *LowestScorePolicy) Score(ts frame.Timestamp) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scores[ts]
	return s, ok
}

func (p *LowestScorePolicy) record(ts frame.Timestamp, md *frame.Metadata) {
	if md == nil {
		return
	}
	score, ok := md.Float(p.key)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores[ts] = score
}

// PolicyFactory creates a fresh EvictionHandler for each burst.
type PolicyFactory func() ring.EvictionHandler

// PolicyByName returns the factory for a configured policy name:
// "oldest" or "lowest_sharpness". Unknown names report false.
func PolicyByName(name string) (PolicyFactory, bool) {
	switch name {
	case "oldest", "":
		return func() ring.EvictionHandler { return OldestFirstPolicy{} }, true
	case "lowest_sharpness":
		return func() ring.EvictionHandler { return NewLowestScorePolicy(frame.KeySharpness) }, true
	default:
		return nil, false
	}
}
