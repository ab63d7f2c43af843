// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Handle identifies one subscription for the lifetime of a Manager. It is
// also the subscription id sent to the server.
type Handle string

// State is the confirmation state of a subscription.
type State int

const (
	Pending State = iota
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Subscription is the desired state for one (table, events) pair.
type Subscription struct {
	Handle Handle
	Table  string
	Events EventSet
	State  State
	// Err is the reason for the last failure.
	Err error

	// ref is the outstanding subscribe request, empty when none is in flight.
	ref      string
	deadline time.Time
}

// Registry is the authoritative record of what the client expects to
// receive. It survives reconnects and is not safe for concurrent use; the
// manager's loop is its only user.
type Registry struct {
	subs  map[Handle]*Subscription
	keys  map[regKey]Handle
	order []Handle
}

type regKey struct {
	table  string
	events EventSet
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[Handle]*Subscription),
		keys: make(map[regKey]Handle),
	}
}

// Add records intent for (table, events). When an entry already exists it is
// returned unchanged with created false.
func (r *Registry) Add(table string, events EventSet) (sub *Subscription, created bool) {
	k := regKey{table, events}
	if h, ok := r.keys[k]; ok {
		return r.subs[h], false
	}
	s := &Subscription{
		Handle: Handle(ulid.Make().String()),
		Table:  table,
		Events: events,
		State:  Pending,
	}
	r.subs[s.Handle] = s
	r.keys[k] = s.Handle
	r.order = append(r.order, s.Handle)
	return s, true
}

func (r *Registry) Get(h Handle) (*Subscription, bool) {
	s, ok := r.subs[h]
	return s, ok
}

// Remove deletes the entry for h.
func (r *Registry) Remove(h Handle) (*Subscription, bool) {
	s, ok := r.subs[h]
	if !ok {
		return nil, false
	}
	delete(r.subs, h)
	delete(r.keys, regKey{s.Table, s.Events})
	for i, oh := range r.order {
		if oh == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

// ByRef finds the entry waiting on the subscribe request ref.
func (r *Registry) ByRef(ref string) (*Subscription, bool) {
	if ref == "" {
		return nil, false
	}
	for _, h := range r.order {
		if s := r.subs[h]; s.ref == ref {
			return s, true
		}
	}
	return nil, false
}

// All returns every entry in insertion order.
func (r *Registry) All() []*Subscription {
	out := make([]*Subscription, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.subs[h])
	}
	return out
}

// Unconfirmed returns the Pending and Failed entries in insertion order.
func (r *Registry) Unconfirmed() []*Subscription {
	var out []*Subscription
	for _, h := range r.order {
		if s := r.subs[h]; s.State != Confirmed {
			out = append(out, s)
		}
	}
	return out
}

// Matches reports whether a Confirmed entry covers (table, t).
func (r *Registry) Matches(table string, t EventType) bool {
	for _, s := range r.subs {
		if s.State == Confirmed && s.Table == table && s.Events.Has(t) {
			return true
		}
	}
	return false
}

// HasTable reports whether any entry, in any state, names table.
func (r *Registry) HasTable(table string) bool {
	for _, s := range r.subs {
		if s.Table == table {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int { return len(r.subs) }

// MarkRequested notes an in-flight subscribe request that must be answered
// before deadline.
func (r *Registry) MarkRequested(s *Subscription, ref string, deadline time.Time) {
	s.State = Pending
	s.Err = nil
	s.ref = ref
	s.deadline = deadline
}

func (r *Registry) MarkConfirmed(s *Subscription) {
	s.State = Confirmed
	s.Err = nil
	s.ref = ""
	s.deadline = time.Time{}
}

func (r *Registry) MarkFailed(s *Subscription, err error) {
	s.State = Failed
	s.Err = err
	s.ref = ""
	s.deadline = time.Time{}
}

// Expired returns the Pending entries whose request deadline is before now.
func (r *Registry) Expired(now time.Time) []*Subscription {
	var out []*Subscription
	for _, h := range r.order {
		s := r.subs[h]
		if s.State == Pending && s.ref != "" && now.After(s.deadline) {
			out = append(out, s)
		}
	}
	return out
}

// Reset returns every Confirmed entry to Pending and forgets in-flight
// requests. Used when the connection is lost: nothing the old connection
// confirmed or was asked is assumed to hold on the next one.
func (r *Registry) Reset() {
	for _, s := range r.subs {
		if s.State == Confirmed {
			s.State = Pending
		}
		s.ref = ""
		s.deadline = time.Time{}
	}
}
