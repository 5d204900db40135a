package mdquery

import "context"

// Search runs predicate once and returns the initial result set.
func Search(ctx context.Context, service Service, predicate string, opts ...Option) ([]*Item, error) {
	q, err := New(service, predicate, opts...)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	return await(ctx, q)
}

// await starts q and blocks until its first result arrives or ctx is done.
func await(ctx context.Context, q *Query) ([]*Item, error) {
	results := make(chan []*Item, 1)
	if err := q.Start(func(items []*Item) {
		results <- items
	}); err != nil {
		return nil, err
	}

	select {
	case items := <-results:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
