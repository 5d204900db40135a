package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mwantia/mdquery"
)

// SearchAdapter runs one live query at a time and turns its callbacks into
// bubbletea messages.
type SearchAdapter struct {
	mu      sync.Mutex
	service mdquery.Service
	opts    []mdquery.Option
	query   *mdquery.Query
	gen     int

	msgs chan tea.Msg
}

func NewSearchAdapter(service mdquery.Service, opts ...mdquery.Option) *SearchAdapter {
	return &SearchAdapter{
		service: service,
		opts:    opts,
		msgs:    make(chan tea.Msg, 64),
	}
}

// Messages emitted by the adapter
type resultsMsg struct {
	generation int
	items      []*mdquery.Item
}

type batchMsg struct {
	generation int
	batch      *mdquery.UpdateBatch
}

// Reserve allocates the generation of the next search. Messages of older
// generations are stale from now on.
func (a *SearchAdapter) Reserve() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	return a.gen
}

// Search replaces the running query. Results and batches of the new query are
// tagged with gen. A search overtaken by a newer reservation does nothing.
func (a *SearchAdapter) Search(gen int, predicate string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		return nil
	}

	if a.query != nil {
		a.query.Close()
		a.query = nil
	}

	q, err := mdquery.New(a.service, predicate, a.opts...)
	if err != nil {
		return err
	}

	if err := q.Watch(func(batch *mdquery.UpdateBatch) {
		a.msgs <- batchMsg{generation: gen, batch: batch}
	}); err != nil {
		q.Close()
		return fmt.Errorf("failed to watch: %w", err)
	}

	if err := q.Start(func(items []*mdquery.Item) {
		a.msgs <- resultsMsg{generation: gen, items: items}
	}); err != nil {
		q.Close()
		return fmt.Errorf("failed to start: %w", err)
	}

	a.query = q
	DebugLog("Started search gen=%d: %s", gen, predicate)
	return nil
}

// Stats of the running query, zero without one.
func (a *SearchAdapter) Stats() mdquery.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.query == nil {
		return mdquery.Stats{}
	}
	return a.query.Stats()
}

// Wait returns a command that delivers the next adapter message.
func (a *SearchAdapter) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-a.msgs
	}
}

func (a *SearchAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.query != nil {
		a.query.Close()
		a.query = nil
	}
}
