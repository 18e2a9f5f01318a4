package polling

import "sync"

// CancelToken is a cooperative cancellation flag. It is checked between poll
// attempts and never interrupts a remote call already in flight.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an unsignaled token
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel signals the token. Calling it more than once is a no-op.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation. A nil token never fires.
func (t *CancelToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
