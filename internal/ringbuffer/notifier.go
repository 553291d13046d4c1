package ringbuffer

import (
	"sync"

	"github.com/jittakal/zslring/pkg/ring"
)

// notifier delivers availability changes to a listener on its own goroutine.
// Posts never block; a burst of posts collapses into the latest value, and a
// value equal to the last one delivered is skipped.
type notifier struct {
	mu           sync.Mutex
	listener     ring.AvailabilityListener
	latest       bool
	dirty        bool
	delivered    bool
	hasDelivered bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) setListener(l ring.AvailabilityListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = l
	n.hasDelivered = false
}

func (n *notifier) post(available bool) {
	n.mu.Lock()
	n.latest = available
	n.dirty = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		select {
		case <-n.wake:
			n.flush()
		case <-n.quit:
			n.flush()
			return
		}
	}
}

func (n *notifier) flush() {
	n.mu.Lock()
	if !n.dirty || n.listener == nil {
		n.dirty = false
		n.mu.Unlock()
		return
	}
	value, l := n.latest, n.listener
	n.dirty = false
	if n.hasDelivered && n.delivered == value {
		n.mu.Unlock()
		return
	}
	n.delivered, n.hasDelivered = value, true
	n.mu.Unlock()

	l(value)
}

// stop delivers any pending value and waits for the goroutine to exit.
func (n *notifier) stop() {
	close(n.quit)
	<-n.done
}
