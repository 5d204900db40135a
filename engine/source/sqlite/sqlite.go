package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/data/errors"
	"github.com/mwantia/mdquery/engine/source"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const DefaultPollInterval = 250 * time.Millisecond

// SQLiteSource indexes items in a SQLite table. Triggers record every mutation
// in a change log that watchers poll, so writers in other processes are seen too.
type SQLiteSource struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool

	pollInterval time.Duration
}

type Option func(*SQLiteSource)

func WithPollInterval(interval time.Duration) Option {
	return func(ss *SQLiteSource) {
		ss.pollInterval = interval
	}
}

// NewSQLiteSource opens the database at dbPath, creating the schema if needed.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewSQLiteSource(dbPath string, opts ...Option) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// An in-memory database only lives as long as its single connection
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for concurrent readers while polling
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	ss := &SQLiteSource{
		db:           db,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(ss)
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return ss, nil
}

func (ss *SQLiteSource) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mdq_items (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		type INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT,
		access_time INTEGER NOT NULL,
		modify_time INTEGER NOT NULL,
		create_time INTEGER NOT NULL,
		attributes TEXT
	);

	-- Change log consumed by watchers, kind 0 = put, 1 = delete
	CREATE TABLE IF NOT EXISTS mdq_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		kind INTEGER NOT NULL
	);

	CREATE TRIGGER IF NOT EXISTS mdq_items_insert AFTER INSERT ON mdq_items
	BEGIN
		INSERT INTO mdq_changes (key, kind) VALUES (NEW.key, 0);
	END;

	CREATE TRIGGER IF NOT EXISTS mdq_items_update AFTER UPDATE ON mdq_items
	BEGIN
		INSERT INTO mdq_changes (key, kind) SELECT OLD.key, 1 WHERE OLD.key != NEW.key;
		INSERT INTO mdq_changes (key, kind) VALUES (NEW.key, 0);
	END;

	CREATE TRIGGER IF NOT EXISTS mdq_items_delete AFTER DELETE ON mdq_items
	BEGIN
		INSERT INTO mdq_changes (key, kind) VALUES (OLD.key, 1);
	END;
	`

	_, err := ss.db.Exec(schema)
	return err
}

// Returns the identifier name defined for this source
func (*SQLiteSource) Name() string {
	return "sqlite"
}

func (ss *SQLiteSource) Open(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed {
		return errors.SourceClosed(ss.Name())
	}

	if err := ss.db.PingContext(ctx); err != nil {
		return errors.SourceUnavailable(err, ss.Name())
	}
	return nil
}

func (ss *SQLiteSource) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed {
		return nil
	}

	ss.closed = true
	return ss.db.Close()
}

func (*SQLiteSource) GetCapabilities() *source.Capabilities {
	return &source.Capabilities{
		Capabilities: []source.Capability{
			source.CapabilityScan,
			source.CapabilityWatch,
		},
	}
}

const columns = "id, key, type, size, content_type, access_time, modify_time, create_time, attributes"

// Put inserts meta or replaces the item stored under the same key.
func (ss *SQLiteSource) Put(ctx context.Context, meta *data.Metadata) error {
	if meta == nil {
		return data.ErrInvalid
	}

	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return errors.SourceClosed(ss.Name())
	}

	attributes, err := json.Marshal(meta.Attributes)
	if err != nil {
		return err
	}

	id := meta.ID
	if id == "" {
		id = data.NewMetadata(meta.Key, meta.Type, meta.Size).ID
	}

	_, err = ss.db.ExecContext(ctx, `
		INSERT INTO mdq_items (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			type = excluded.type,
			size = excluded.size,
			content_type = excluded.content_type,
			access_time = excluded.access_time,
			modify_time = excluded.modify_time,
			create_time = excluded.create_time,
			attributes = excluded.attributes`,
		id, data.CleanKey(meta.Key), int(meta.Type), meta.Size, string(meta.ContentType),
		meta.AccessTime.UnixNano(), meta.ModifyTime.UnixNano(), meta.CreateTime.UnixNano(),
		string(attributes))
	return err
}

func (ss *SQLiteSource) Delete(ctx context.Context, key string) error {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return errors.SourceClosed(ss.Name())
	}

	result, err := ss.db.ExecContext(ctx, "DELETE FROM mdq_items WHERE key = ?", data.CleanKey(key))
	if err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return data.ErrNotExist
	}
	return nil
}

func (ss *SQLiteSource) Get(ctx context.Context, key string) (*data.Metadata, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return nil, errors.SourceClosed(ss.Name())
	}

	return ss.get(ctx, data.CleanKey(key))
}

func (ss *SQLiteSource) get(ctx context.Context, key string) (*data.Metadata, error) {
	row := ss.db.QueryRowContext(ctx, "SELECT "+columns+" FROM mdq_items WHERE key = ?", key)

	meta, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return nil, data.ErrNotExist
	}
	return meta, err
}

func (ss *SQLiteSource) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return nil, errors.SourceClosed(ss.Name())
	}

	result := make([]*data.Metadata, 0)
	for _, prefix := range prefixes {
		rows, err := ss.db.QueryContext(ctx,
			"SELECT "+columns+" FROM mdq_items WHERE key = ? OR key LIKE ? ESCAPE '\\'",
			prefix, likePrefix(prefix))
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			meta, err := scanMetadata(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			result = append(result, meta)
		}

		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (ss *SQLiteSource) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return nil, errors.SourceClosed(ss.Name())
	}

	var last int64
	if err := ss.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM mdq_changes").Scan(&last); err != nil {
		return nil, errors.SourceUnavailable(err, ss.Name())
	}

	errc := make(chan error, 1)
	go ss.poll(ctx, prefixes, sink, last, errc)

	return errc, nil
}

func (ss *SQLiteSource) poll(ctx context.Context, prefixes []string, sink func(source.Change), last int64, errc chan<- error) {
	defer close(errc)

	ticker := time.NewTicker(ss.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := ss.drain(ctx, prefixes, sink, last)
		if err != nil {
			if ctx.Err() == nil {
				errc <- err
			}
			return
		}
		last = next
	}
}

type logEntry struct {
	seq  int64
	key  string
	kind int
}

// drain delivers every logged change after seq and returns the last one seen.
func (ss *SQLiteSource) drain(ctx context.Context, prefixes []string, sink func(source.Change), seq int64) (int64, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return seq, errors.SourceClosed(ss.Name())
	}

	rows, err := ss.db.QueryContext(ctx, "SELECT seq, key, kind FROM mdq_changes WHERE seq > ? ORDER BY seq", seq)
	if err != nil {
		return seq, err
	}

	var entries []logEntry
	for rows.Next() {
		var entry logEntry
		if err := rows.Scan(&entry.seq, &entry.key, &entry.kind); err != nil {
			rows.Close()
			return seq, err
		}
		entries = append(entries, entry)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return seq, err
	}

	for _, entry := range entries {
		seq = entry.seq
		if !source.InScope(entry.key, prefixes) {
			continue
		}

		change := source.Change{Kind: source.ChangeDelete, Key: entry.key}
		if entry.kind == 0 {
			meta, err := ss.get(ctx, entry.key)
			switch {
			case err == nil:
				change = source.Change{Kind: source.ChangePut, Key: entry.key, Metadata: meta}
			case err != data.ErrNotExist:
				return seq, err
			}
		}
		sink(change)
	}

	return seq, nil
}

// Prune drops all but the newest keep change log entries.
func (ss *SQLiteSource) Prune(ctx context.Context, keep int) (int64, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return 0, errors.SourceClosed(ss.Name())
	}

	result, err := ss.db.ExecContext(ctx,
		"DELETE FROM mdq_changes WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM mdq_changes) - ?", keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (*data.Metadata, error) {
	var (
		meta        data.Metadata
		fileType    int
		contentType sql.NullString
		attributes  sql.NullString

		accessTime, modifyTime, createTime int64
	)

	if err := row.Scan(&meta.ID, &meta.Key, &fileType, &meta.Size, &contentType,
		&accessTime, &modifyTime, &createTime, &attributes); err != nil {
		return nil, err
	}

	meta.Type = data.FileType(fileType)
	meta.ContentType = data.ContentType(contentType.String)
	meta.AccessTime = time.Unix(0, accessTime)
	meta.ModifyTime = time.Unix(0, modifyTime)
	meta.CreateTime = time.Unix(0, createTime)
	meta.Attributes = make(map[string]string)

	if attributes.Valid && attributes.String != "" && attributes.String != "null" {
		if err := json.Unmarshal([]byte(attributes.String), &meta.Attributes); err != nil {
			return nil, err
		}
	}

	return &meta, nil
}

// likePrefix returns a LIKE pattern matching every key below prefix.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSuffix(prefix, "/"))
	return escaped + "/%"
}
