package pool

import (
	log "github.com/sirupsen/logrus"
)

type message struct {
	job       func()
	terminate bool
}

var _ Pool = (*SharedQueue)(nil)

// SharedQueue is a fixed set of long-lived workers draining one unbounded
// multi-producer multi-consumer queue. A worker whose job panics starts a
// replacement holding the same receiver before it dies, so the pool keeps
// its size; the failed job is not retried.
type SharedQueue struct {
	size int
	in   chan<- message
}

func NewSharedQueue(size int) *SharedQueue {
	in := make(chan message)
	out := make(chan message)
	go pump(in, out)
	w := worker{queue: out}
	for i := 0; i < size; i++ {
		go w.run()
	}
	return &SharedQueue{size: size, in: in}
}

func (p *SharedQueue) Spawn(task func()) {
	p.in <- message{job: task}
}

// Shutdown enqueues one terminate message per worker, behind whatever jobs
// are already queued, then closes the inbound side.
func (p *SharedQueue) Shutdown() {
	for i := 0; i < p.size; i++ {
		p.in <- message{terminate: true}
	}
	close(p.in)
}

// pump buffers between in and out so that senders never block on busy
// workers. It exits, closing out, when in is closed and the backlog has
// drained.
func pump(in <-chan message, out chan<- message) {
	var backlog []message
	for {
		if len(backlog) == 0 {
			m, ok := <-in
			if !ok {
				close(out)
				return
			}
			backlog = append(backlog, m)
		}
		select {
		case m, ok := <-in:
			if ok {
				backlog = append(backlog, m)
				continue
			}
			for _, m := range backlog {
				out <- m
			}
			close(out)
			return
		case out <- backlog[0]:
			backlog = backlog[1:]
		}
	}
}

type worker struct {
	queue <-chan message
}

func (w worker) run() {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("cause", r).Error("Worker crashed, starting a replacement")
			go w.run()
		}
	}()
	for m := range w.queue {
		if m.terminate {
			return
		}
		m.job()
	}
}
