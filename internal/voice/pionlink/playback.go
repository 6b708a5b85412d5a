package pionlink

import (
	"io"
	"sync"
)

// Playback is the voice.Output for remote audio. Payloads are forwarded to
// the sink unless muted.
type Playback struct {
	mu      sync.Mutex
	sink    io.Writer
	muted   bool
	dropped int
}

func NewPlayback(sink io.Writer) *Playback {
	if sink == nil {
		sink = io.Discard
	}
	return &Playback{sink: sink}
}

func (p *Playback) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *Playback) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Dropped counts payloads discarded while muted.
func (p *Playback) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Playback) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted {
		p.dropped++
		return len(b), nil
	}
	return p.sink.Write(b)
}
