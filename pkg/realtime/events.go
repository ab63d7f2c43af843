// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package realtime

import (
	"encoding/json"
	"strings"

	rberrors "rowbase/cli/pkg/errors"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// EventSet is a set of event types.
type EventSet uint8

const (
	OnInsert EventSet = 1 << iota
	OnUpdate
	OnDelete

	AllEvents = OnInsert | OnUpdate | OnDelete
)

var eventOrder = []struct {
	typ EventType
	bit EventSet
}{
	{Insert, OnInsert},
	{Update, OnUpdate},
	{Delete, OnDelete},
}

func bitOf(t EventType) EventSet {
	for _, e := range eventOrder {
		if e.typ == t {
			return e.bit
		}
	}
	return 0
}

// Has reports whether t is in the set.
func (s EventSet) Has(t EventType) bool {
	b := bitOf(t)
	return b != 0 && s&b != 0
}

// Types lists the set's members as INSERT, UPDATE, DELETE in that order.
func (s EventSet) Types() []EventType {
	var out []EventType
	for _, e := range eventOrder {
		if s&e.bit != 0 {
			out = append(out, e.typ)
		}
	}
	return out
}

func (s EventSet) String() string {
	types := s.Types()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// ParseEvents parses a comma-separated, case-insensitive list such as
// "insert,update". "*" and the empty string mean all events.
func ParseEvents(s string) (EventSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return AllEvents, nil
	}
	var set EventSet
	for _, p := range strings.Split(s, ",") {
		b := bitOf(EventType(strings.ToUpper(strings.TrimSpace(p))))
		if b == 0 {
			return 0, rberrors.Invalid(strings.TrimSpace(p), "", "unknown event type")
		}
		set |= b
	}
	return set, nil
}

// ChangeEvent is one row change delivered by the server.
type ChangeEvent struct {
	Table  string
	Type   EventType
	Record json.RawMessage
	// Sequence is the server-assigned sequence number; meaningful only when
	// Sequenced is true.
	Sequence  uint64
	Sequenced bool
}

// Decode unmarshals the record into v.
func (e ChangeEvent) Decode(v any) error {
	return json.Unmarshal(e.Record, v)
}
