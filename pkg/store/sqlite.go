package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"wanderguide/pkg/db"
	"wanderguide/pkg/model"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	POIStore
	DispatchStore
	CacheStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- POI ---

const poiColumns = `id, name, category, lat, lon, summary, rating, source, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPOI(r rowScanner) (*model.POI, error) {
	var p model.POI
	var name, category, summary, source sql.NullString
	var rating sql.NullFloat64
	err := r.Scan(&p.ID, &name, &category, &p.Lat, &p.Lon, &summary, &rating, &source, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.Category = category.String
	p.Summary = summary.String
	p.Rating = rating.Float64
	p.Source = source.String
	return &p, nil
}

func (s *SQLiteStore) GetPOI(ctx context.Context, id string) (*model.POI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM poi WHERE id = ?`, id)
	p, err := scanPOI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) SavePOI(ctx context.Context, p *model.POI) error {
	return s.savePOI(ctx, s.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) savePOI(ctx context.Context, ex execer, p *model.POI) error {
	query := `INSERT OR REPLACE INTO poi (` + poiColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, query,
		p.ID, p.Name, p.Category, p.Lat, p.Lon, p.Summary, p.Rating, p.Source, createdAt,
	)
	return err
}

// SavePOIs replaces a batch of POIs in one transaction.
func (s *SQLiteStore) SavePOIs(ctx context.Context, pois []*model.POI) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, p := range pois {
		if err := s.savePOI(ctx, tx, p); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save poi %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListPOIs(ctx context.Context) ([]*model.POI, error) {
	return s.queryPOIs(ctx, `SELECT `+poiColumns+` FROM poi ORDER BY id`)
}

// ListPOIsInBounds returns POIs inside a lat/lon box. Callers refine with a true distance check.
func (s *SQLiteStore) ListPOIsInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.POI, error) {
	return s.queryPOIs(ctx,
		`SELECT `+poiColumns+` FROM poi WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ? ORDER BY id`,
		minLat, maxLat, minLon, maxLon)
}

func (s *SQLiteStore) queryPOIs(ctx context.Context, query string, args ...any) ([]*model.POI, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) DeletePOI(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM poi WHERE id = ?", id)
	return err
}

// DeletePOIsBySource removes every POI imported from source.
func (s *SQLiteStore) DeletePOIsBySource(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM poi WHERE source = ?", source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Dispatch log ---

func (s *SQLiteStore) SaveDispatch(ctx context.Context, d *model.Dispatch) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT OR REPLACE INTO dispatch_log (
		id, session_id, poi_id, poi_name, kind, distance_m, text, status, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.SessionID, d.POIID, d.POIName, string(d.Kind), d.DistanceMeters,
		d.Text, string(d.Status), d.Error, createdAt.UTC(),
	)
	return err
}

// ListDispatches returns the newest dispatches of a session first. limit <= 0 means no limit.
func (s *SQLiteStore) ListDispatches(ctx context.Context, sessionID string, limit int) ([]*model.Dispatch, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, poi_id, poi_name, kind, distance_m, text, status, error, created_at
		 FROM dispatch_log WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.Dispatch
	for rows.Next() {
		var d model.Dispatch
		var kind, status string
		var errText sql.NullString
		if err := rows.Scan(&d.ID, &d.SessionID, &d.POIID, &d.POIName, &kind, &d.DistanceMeters,
			&d.Text, &status, &errText, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Kind = model.DispatchKind(kind)
		d.Status = model.DispatchStatus(status)
		d.Error = errText.String
		results = append(results, &d)
	}
	return results, rows.Err()
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		return nil, false
	}

	// Transparent Decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		decompressed, err := decompress(val)
		if err == nil {
			return decompressed, true
		}
	}

	return val, true
}

// --- Compression Pooling ---

var (
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// buf goes back to the pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cache WHERE key = ?", key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	compressed, err := compress(val)
	if err == nil {
		val = compressed
	}

	query := `INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) PruneCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.db.PruneCache(olderThan)
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
