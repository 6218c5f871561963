package proxy

import "sync/atomic"

// responder lets exactly one caller deliver the response for a request.
type responder struct {
	claimed atomic.Bool
	deliver DeliverFunc
}

func newResponder(deliver DeliverFunc) *responder {
	return &responder{deliver: deliver}
}

// send delivers resp if nothing has been delivered yet and reports
// whether it did.
func (r *responder) send(resp Response) bool {
	if !r.claimed.CompareAndSwap(false, true) {
		return false
	}
	r.deliver(resp)
	return true
}

// sent reports whether the request has been answered.
func (r *responder) sent() bool {
	return r.claimed.Load()
}

const (
	gateOpen int32 = iota
	gateCommitted
	gateExpired
)

// gate settles the race between a vendor answer and the deadline. Only
// one side wins.
type gate struct {
	state atomic.Int32
}

// commit claims the gate for the vendor answer.
func (g *gate) commit() bool {
	return g.state.CompareAndSwap(gateOpen, gateCommitted)
}

// expire claims the gate for the timeout.
func (g *gate) expire() bool {
	return g.state.CompareAndSwap(gateOpen, gateExpired)
}
