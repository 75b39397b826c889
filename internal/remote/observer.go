// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"fmt"
	"sync"

	"github.com/ManuGH/nestctl/internal/remote/rpc"
	"github.com/ManuGH/nestctl/internal/remote/status"
	"github.com/rs/zerolog"
)

// Observer receives client events. Events are delivered in order on a single
// goroutine; implementations must not block for long.
type Observer interface {
	ConnectivityChanged(connected bool)
	StatusChanged(snapshot status.Snapshot)
	Notification(n rpc.Notification)
	Error(err error)
}

// ObserverFuncs adapts optional closures to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnConnectivity func(connected bool)
	OnStatus       func(snapshot status.Snapshot)
	OnNotification func(n rpc.Notification)
	OnError        func(err error)
}

func (f ObserverFuncs) ConnectivityChanged(connected bool) {
	if f.OnConnectivity != nil {
		f.OnConnectivity(connected)
	}
}

func (f ObserverFuncs) StatusChanged(snapshot status.Snapshot) {
	if f.OnStatus != nil {
		f.OnStatus(snapshot)
	}
}

func (f ObserverFuncs) Notification(n rpc.Notification) {
	if f.OnNotification != nil {
		f.OnNotification(n)
	}
}

func (f ObserverFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// Subscriber is implemented by anything that publishes client events.
type Subscriber interface {
	Subscribe(o Observer) (unsubscribe func())
}

type event func(Observer)

type subscription struct {
	id       uint64
	observer Observer
}

// dispatcher fans events out to observers from one goroutine. Enqueueing
// never blocks so it can be done while holding the client lock.
type dispatcher struct {
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []event
	subs   []subscription
	nextID uint64
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(logger zerolog.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(o Observer) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, observer: o})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range d.subs {
				if s.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (d *dispatcher) enqueue(ev event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) connectivity(connected bool) {
	d.enqueue(func(o Observer) { o.ConnectivityChanged(connected) })
}

func (d *dispatcher) status(s status.Snapshot) {
	d.enqueue(func(o Observer) { o.StatusChanged(s) })
}

func (d *dispatcher) notification(n rpc.Notification) {
	d.enqueue(func(o Observer) { o.Notification(n) })
}

func (d *dispatcher) error(err error) {
	d.enqueue(func(o Observer) { o.Error(err) })
}

// close stops accepting events, delivers what is queued and waits for the
// run loop to exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			subs := append([]subscription(nil), d.subs...)
			d.mu.Unlock()

			for _, s := range subs {
				d.deliver(s.observer, ev)
			}
		}
	}
}

func (d *dispatcher) deliver(o Observer, ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("event", "observer.panic").
				Str("panic", fmt.Sprint(r)).
				Msg("observer panicked; continuing with remaining observers")
		}
	}()
	ev(o)
}
