package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mwantia/mdquery"
)

// printer serializes output, results and update batches are printed from
// different goroutines.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
	err  error
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

type line struct {
	Change string        `json:"change,omitempty"`
	Item   *mdquery.Item `json:"item"`
}

// items prints the gathered items. Like batch it keeps the first write error.
func (p *printer) items(items []*mdquery.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range items {
		if p.err == nil {
			p.err = p.print("", item)
		}
	}
	return p.err
}

// batch prints every change of batch. The first write error sticks and is
// reported by Err.
func (p *printer) batch(batch *mdquery.UpdateBatch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch.Each(func(kind mdquery.UpdateType, items []*mdquery.Item) {
		for _, item := range items {
			if p.err == nil {
				p.err = p.print(kind.String(), item)
			}
		}
	})
}

func (p *printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

func (p *printer) print(change string, item *mdquery.Item) error {
	if p.json {
		raw, err := json.Marshal(line{Change: change, Item: item})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", raw)
		return err
	}

	if change == "" {
		_, err := fmt.Fprintln(p.w, item.Path)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", marker(change), item.Path)
	return err
}

func marker(change string) string {
	switch change {
	case mdquery.UpdateAdd.String():
		return "+"
	case mdquery.UpdateRemove.String():
		return "-"
	default:
		return "~"
	}
}
