package show

import (
	"sync"
)

// Dispatcher is the bidirectional command channel to the equipment. Sends are
// fire-and-forget from the show's point of view; confirmations arrive later
// through the status handlers.
type Dispatcher interface {
	SendCommand(cmd Command) error
	OnStatusUpdate(fn func(StatusUpdate)) (unsubscribe func())
}

// Loopback is an in-memory Dispatcher that echoes every command back as a
// status update, synchronously, to all subscribers.
type Loopback struct {
	mu       sync.RWMutex
	handlers map[int]func(StatusUpdate)
	nextID   int
	sent     []Command
}

// NewLoopback creates an empty loopback dispatcher.
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[int]func(StatusUpdate))}
}

// SendCommand records cmd and delivers {id, on: state} to every subscriber.
func (l *Loopback) SendCommand(cmd Command) error {
	l.mu.Lock()
	l.sent = append(l.sent, cmd)
	hs := make([]func(StatusUpdate), 0, len(l.handlers))
	for _, h := range l.handlers {
		hs = append(hs, h)
	}
	l.mu.Unlock()

	for _, h := range hs {
		h(StatusUpdate{ID: cmd.ID, On: cmd.State})
	}
	return nil
}

// OnStatusUpdate registers fn and returns a func that removes it.
func (l *Loopback) OnStatusUpdate(fn func(StatusUpdate)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.handlers, id)
			l.mu.Unlock()
		})
	}
}

// Inject delivers an update as if the far side had reported it unprompted.
func (l *Loopback) Inject(u StatusUpdate) {
	l.mu.RLock()
	hs := make([]func(StatusUpdate), 0, len(l.handlers))
	for _, h := range l.handlers {
		hs = append(hs, h)
	}
	l.mu.RUnlock()
	for _, h := range hs {
		h(u)
	}
}

// Sent returns every command sent so far.
func (l *Loopback) Sent() []Command {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Command, len(l.sent))
	copy(out, l.sent)
	return out
}
