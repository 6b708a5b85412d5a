package channel

import (
	"context"
	"sync"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

const pipeBuffer = 256

// PipeEnd is one side of an in-memory channel. Events emitted on one end are
// delivered to the other end's subscribers in order, on its own goroutine.
type PipeEnd struct {
	dispatcher

	peer *PipeEnd
	in   chan types.Envelope

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

var _ Channel = (*PipeEnd)(nil)

func NewPipe() (*PipeEnd, *PipeEnd) {
	a, b := newPipeEnd(), newPipeEnd()
	a.peer, b.peer = b, a
	go a.deliver()
	go b.deliver()
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		in:     make(chan types.Envelope, pipeBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *PipeEnd) Emit(ctx context.Context, event string, payload any) error {
	env, err := Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrClosed
	case <-p.peer.closed:
		return ErrClosed
	default:
	}
	select {
	case p.peer.in <- env:
		return nil
	case <-p.peer.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeEnd) deliver() {
	defer close(p.done)
	for {
		select {
		case env := <-p.in:
			p.dispatch(env)
		case <-p.closed:
			return
		}
	}
}

// Close stops delivery on this end. Pending events are dropped.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	<-p.done
	return nil
}
