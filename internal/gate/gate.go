// Package gate bounds how many executions run at once.
//
// The gate never queues: a caller that finds every slot taken is turned away
// immediately.
package gate

// Gate is a counting semaphore with a non-blocking acquire.
type Gate struct {
	slots chan struct{}
}

// New creates a gate with size slots. size must be positive.
func New(size int) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{slots: make(chan struct{}, size)}
}

// TryAcquire takes a slot if one is free. On success the returned release
// function must be called exactly once; it is safe to defer.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	select {
	case g.slots <- struct{}{}:
		released := false
		return func() {
			if released {
				return
			}
			released = true
			<-g.slots
		}, true
	default:
		return nil, false
	}
}

// InUse reports how many slots are taken.
func (g *Gate) InUse() int {
	return len(g.slots)
}

// Size reports the total number of slots.
func (g *Gate) Size() int {
	return cap(g.slots)
}
