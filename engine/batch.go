package engine

import (
	"slices"
	"strings"

	"github.com/mwantia/mdquery/data"
)

type op int

const (
	opNone op = iota
	opAdded
	opChanged
	opRemoved
)

// merge folds the next classification of a key into the one already pending in a batch.
func merge(prev, next op) op {
	switch {
	case prev == opNone:
		return next
	case prev == opAdded && next == opChanged:
		return opAdded
	case prev == opAdded && next == opRemoved:
		return opNone
	case prev == opRemoved && next == opAdded:
		return opChanged
	default:
		return next
	}
}

// resultSet is the current set of matching items of one query.
type resultSet struct {
	items map[string]*data.Metadata
	limit int
}

func newResultSet(limit int) *resultSet {
	return &resultSet{items: make(map[string]*data.Metadata), limit: limit}
}

// fill replaces the set with matches, keeping the first limit keys in key order.
func (rs *resultSet) fill(matches []*data.Metadata) {
	sortByKey(matches)
	if rs.limit > 0 && len(matches) > rs.limit {
		matches = matches[:rs.limit]
	}

	rs.items = make(map[string]*data.Metadata, len(matches))
	for _, meta := range matches {
		rs.items[meta.Key] = meta
	}
}

func (rs *resultSet) full() bool {
	return rs.limit > 0 && len(rs.items) >= rs.limit
}

// apply moves key into or out of the set and classifies the move.
func (rs *resultSet) apply(key string, meta *data.Metadata, matched bool) op {
	current, present := rs.items[key]

	switch {
	case matched && !present:
		if rs.full() {
			return opNone
		}
		rs.items[key] = meta
		return opAdded
	case matched && present:
		rs.items[key] = meta
		if current.Equal(meta) {
			return opNone
		}
		return opChanged
	case !matched && present:
		delete(rs.items, key)
		return opRemoved
	}

	return opNone
}

func (rs *resultSet) snapshot() []*data.Metadata {
	out := make([]*data.Metadata, 0, len(rs.items))
	for _, meta := range rs.items {
		out = append(out, meta.Clone())
	}
	sortByKey(out)
	return out
}

// batch collects classified changes between two DidUpdate notifications.
type batch struct {
	order []string
	ops   map[string]op
	items map[string]*data.Metadata
}

func newBatch() *batch {
	return &batch{
		ops:   make(map[string]op),
		items: make(map[string]*data.Metadata),
	}
}

func (b *batch) record(key string, next op, meta *data.Metadata) {
	if next == opNone {
		return
	}

	prev, seen := b.ops[key]
	if !seen {
		b.order = append(b.order, key)
	}

	b.ops[key] = merge(prev, next)
	if meta != nil {
		b.items[key] = meta
	}
}

// event converts the batch, or returns nil when nothing net changed.
func (b *batch) event() *Event {
	event := &Event{Notification: DidUpdate}
	for _, key := range b.order {
		meta := b.items[key]
		if meta == nil {
			meta = &data.Metadata{Key: key}
		}

		switch b.ops[key] {
		case opAdded:
			event.Added = append(event.Added, meta.Clone())
		case opChanged:
			event.Changed = append(event.Changed, meta.Clone())
		case opRemoved:
			event.Removed = append(event.Removed, meta.Clone())
		}
	}

	if len(event.Added)+len(event.Changed)+len(event.Removed) == 0 {
		return nil
	}
	return event
}

func sortByKey(items []*data.Metadata) {
	slices.SortFunc(items, func(a, b *data.Metadata) int {
		return strings.Compare(a.Key, b.Key)
	})
}
