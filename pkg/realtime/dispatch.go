// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import (
	"sync"
	"time"
)

// dispatcher runs callbacks one at a time, in enqueue order, on its own
// goroutine. The queue is unbounded so the manager loop never waits on a
// slow callback.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return fn, true
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}
		for {
			fn, ok := d.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

// stop discards queued callbacks and waits for a running one to return.
// It must not be called from a callback.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
	close(d.quit)
	<-d.done
}

// backoff returns the wait before reconnect attempt n (1-based): floor
// doubled n-1 times, capped at ceiling.
func backoff(n int, floor, ceiling time.Duration) time.Duration {
	d := floor
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
