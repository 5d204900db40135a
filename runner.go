package mdquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/engine"
)

// Item keys commonly used in predicates.
const (
	ItemKeyDisplayName      = engine.AttrDisplayName
	ItemKeyFSName           = engine.AttrFSName
	ItemKeyModificationDate = engine.AttrModificationDate
	ItemKeyCreationDate     = engine.AttrCreationDate
	ItemKeyLastUsedDate     = engine.AttrLastUsedDate
	ItemKeySize             = engine.AttrFSSize
	ItemKeyContentType      = engine.AttrContentType
)

// Compare is a comparison operator of the predicate language.
type Compare string

const (
	GreaterThan    Compare = ">"
	LessThan       Compare = "<"
	Equal          Compare = "=="
	GreaterOrEqual Compare = ">="
	LessOrEqual    Compare = "<="
)

// FirmlinkPrefix is stripped from the paths returned by a Runner.
const FirmlinkPrefix = "/System/Volumes/Data"

// TimestampToDate formats t as a time value of the predicate language.
func TimestampToDate(t time.Time) string {
	return fmt.Sprintf("$time.iso(%s)", t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// RangeExpression returns an InRange expression over key.
func RangeExpression(key, low, high string) string {
	return fmt.Sprintf("InRange(%s, %s, %s)", key, low, high)
}

// Runner builds a predicate from conditions joined with && and runs it,
// replacing the previous query on every run.
type Runner struct {
	mu sync.Mutex

	service Service
	opts    []Option
	group   []string

	query    *Query
	listener func(*UpdateBatch)
}

// NewRunner creates an empty runner. opts apply to every query it runs.
func NewRunner(service Service, opts ...Option) *Runner {
	return &Runner{service: service, opts: opts}
}

func (r *Runner) push(condition string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.group = append(r.group, condition)
	return r
}

// Expression returns the predicate built so far, or an empty string.
func (r *Runner) Expression() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.expressionLocked()
}

func (r *Runner) expressionLocked() string {
	if len(r.group) == 0 {
		return ""
	}
	return "(" + strings.Join(r.group, " && ") + ")"
}

func (r *Runner) NameLike(name string) *Runner {
	return r.push(fmt.Sprintf(`%s == "*%s*"c`, ItemKeyDisplayName, quote(name)))
}

func (r *Runner) NameIs(name string) *Runner {
	return r.push(fmt.Sprintf(`%s == "%s"c`, ItemKeyDisplayName, quote(name)))
}

func (r *Runner) Time(key string, cmp Compare, t time.Time) *Runner {
	return r.push(fmt.Sprintf("%s %s %s", key, cmp, TimestampToDate(t)))
}

func (r *Runner) Size(cmp Compare, size int64) *Runner {
	return r.push(fmt.Sprintf("%s %s %d", ItemKeySize, cmp, size))
}

func (r *Runner) IsDir(is bool) *Runner {
	op := "=="
	if !is {
		op = "!="
	}
	return r.push(fmt.Sprintf(`%s %s "%s"`, ItemKeyContentType, op, data.ContentTypeFolder))
}

// IsType matches items with the extension ext.
func (r *Runner) IsType(ext string) *Runner {
	return r.push(fmt.Sprintf(`%s == "*.%s"c`, ItemKeyFSName, quote(ext)))
}

// InType matches items with any of the extensions.
func (r *Runner) InType(exts ...string) *Runner {
	if len(exts) == 0 {
		return r
	}

	conditions := make([]string, len(exts))
	for i, ext := range exts {
		conditions[i] = fmt.Sprintf(`%s == "*.%s"c`, ItemKeyFSName, quote(ext))
	}
	return r.push("(" + strings.Join(conditions, " || ") + ")")
}

func (r *Runner) ContentTypeIs(contentType string) *Runner {
	return r.push(fmt.Sprintf(`%s == "%s"`, ItemKeyContentType, quote(contentType)))
}

// And replaces the conditions with (r && other).
func (r *Runner) And(other *Runner) *Runner {
	return r.combine(other, "&&")
}

// Or replaces the conditions with (r || other).
func (r *Runner) Or(other *Runner) *Runner {
	return r.combine(other, "||")
}

func (r *Runner) combine(other *Runner, op string) *Runner {
	theirs := other.Expression()

	r.mu.Lock()
	defer r.mu.Unlock()

	mine := r.expressionLocked()
	switch {
	case mine != "" && theirs != "":
		r.group = []string{fmt.Sprintf("(%s %s %s)", mine, op, theirs)}
	case theirs != "":
		r.group = []string{theirs}
	}
	return r
}

// Merge combines runners with && when and is set, with || otherwise.
// The merged runner uses the service and options of the first runner.
func Merge(and bool, runners ...*Runner) *Runner {
	merged := &Runner{}
	if len(runners) > 0 {
		merged.service = runners[0].service
		merged.opts = runners[0].opts
	}

	for _, runner := range runners {
		if and {
			merged.And(runner)
		} else {
			merged.Or(runner)
		}
	}
	return merged
}

// Run stops the previous query, runs the current expression and waits for its
// initial results. A listener registered with Watch is attached to the new query.
func (r *Runner) Run(ctx context.Context, opts ...Option) ([]*Item, error) {
	r.mu.Lock()
	previous := r.query
	r.query = nil

	q, err := New(r.service, r.expressionLocked(), append(append([]Option{}, r.opts...), opts...)...)
	if err == nil {
		r.query = q
	}
	r.mu.Unlock()

	// Close waits for a running listener, which may itself call into the runner.
	if previous != nil {
		previous.Close()
	}
	if err != nil {
		return nil, err
	}

	items, err := await(ctx, q)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	listener := r.listener
	current := r.query == q
	r.mu.Unlock()

	if listener != nil && current {
		// Watch may already have attached the listener while we waited.
		if err := q.Watch(stripBatch(listener)); err != nil && !errors.Is(err, ErrInvalidState) {
			return nil, err
		}
	}

	return stripItems(items), nil
}

// Watch registers listener for the current query and every later run.
func (r *Runner) Watch(listener func(*UpdateBatch)) error {
	r.mu.Lock()
	r.listener = listener
	q := r.query
	r.mu.Unlock()

	if q == nil || listener == nil {
		return nil
	}
	return q.Watch(stripBatch(listener))
}

func (r *Runner) StopWatch() {
	r.mu.Lock()
	r.listener = nil
	q := r.query
	r.mu.Unlock()

	if q != nil {
		q.StopWatch()
	}
}

// Stop closes the current query.
func (r *Runner) Stop() {
	r.mu.Lock()
	q := r.query
	r.query = nil
	r.mu.Unlock()

	if q != nil {
		q.Close()
	}
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func stripItems(items []*Item) []*Item {
	for _, item := range items {
		if strings.HasPrefix(item.Path, FirmlinkPrefix+"/") {
			item.Path = strings.TrimPrefix(item.Path, FirmlinkPrefix)
		}
	}
	return items
}

func stripBatch(listener func(*UpdateBatch)) func(*UpdateBatch) {
	return func(batch *UpdateBatch) {
		stripItems(batch.Added)
		stripItems(batch.Changed)
		stripItems(batch.Removed)
		listener(batch)
	}
}
