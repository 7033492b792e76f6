package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/uhi-cli/internal/raster"
)

// SQLite is a scene archive backed by modernc.org/sqlite. One file holds
// several named collections (land cover, thermal); a handle is scoped to
// one of them. The date filter runs in SQL against the acquisition index;
// month, cloud and spatial filters run over the decoded stack.
type SQLite struct {
	db         *sql.DB
	collection string
}

// OpenSQLite opens a scene archive at the given path, scoped to the named
// collection, and configures WAL mode.
func OpenSQLite(dsn, collection string) (*SQLite, error) {
	if collection == "" {
		return nil, eris.New("catalog: empty collection name")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &SQLite{db: db, collection: collection}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scenes (
	collection  TEXT NOT NULL,
	id          TEXT NOT NULL,
	acquired_at DATETIME NOT NULL,
	cloud_cover REAL NOT NULL,
	props       TEXT NOT NULL,
	crs         TEXT NOT NULL,
	west        REAL NOT NULL,
	north       REAL NOT NULL,
	scale       REAL NOT NULL,
	width       INTEGER NOT NULL,
	height      INTEGER NOT NULL,
	data        BLOB NOT NULL,
	valid       BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_scenes_acquired_at ON scenes(collection, acquired_at);
`

// Migrate creates the archive schema.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "catalog: migrate")
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddScene stores a scene in the archive.
func (s *SQLite) AddScene(ctx context.Context, sc raster.Scene) error {
	props, err := json.Marshal(sc.Props)
	if err != nil {
		return eris.Wrapf(err, "catalog: marshal props for scene %s", sc.ID)
	}
	g := sc.Raster.Grid()
	data, valid := encodeCells(sc.Raster)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenes (collection, id, acquired_at, cloud_cover, props, crs, west, north, scale, width, height, data, valid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.collection, sc.ID, sc.AcquiredAt.UTC(), sc.CloudCover, string(props),
		g.CRS, g.West, g.North, g.Scale, g.Width, g.Height, data, valid,
	)
	return eris.Wrapf(err, "catalog: insert scene %s", sc.ID)
}

// Scenes returns the scenes matching the query.
func (s *SQLite) Scenes(ctx context.Context, q Query) (raster.Stack, error) {
	query := `SELECT id, acquired_at, cloud_cover, props, crs, west, north, scale, width, height, data, valid
		FROM scenes WHERE collection = ?`
	args := []any{s.collection}
	if !q.From.IsZero() {
		query += ` AND acquired_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND acquired_at < ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY acquired_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query scenes")
	}
	defer rows.Close()

	var stack raster.Stack
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		stack = append(stack, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "catalog: iterate scenes")
	}

	// Date filtering already happened in SQL.
	rest := q
	rest.From, rest.To = time.Time{}, time.Time{}
	return apply(rest, stack), nil
}

func scanScene(rows *sql.Rows) (raster.Scene, error) {
	var (
		sc          raster.Scene
		propsJSON   string
		g           raster.Grid
		data, valid []byte
	)
	if err := rows.Scan(&sc.ID, &sc.AcquiredAt, &sc.CloudCover, &propsJSON,
		&g.CRS, &g.West, &g.North, &g.Scale, &g.Width, &g.Height, &data, &valid); err != nil {
		return sc, eris.Wrap(err, "catalog: scan scene")
	}
	if err := json.Unmarshal([]byte(propsJSON), &sc.Props); err != nil {
		return sc, eris.Wrapf(err, "catalog: unmarshal props for scene %s", sc.ID)
	}
	r, err := decodeCells(g, data, valid)
	if err != nil {
		return sc, eris.Wrapf(err, "catalog: scene %s", sc.ID)
	}
	sc.Raster = r
	return sc, nil
}

// encodeCells serializes a raster into a little-endian float64 blob plus a
// one-byte-per-cell validity blob.
func encodeCells(r *raster.Raster) (data, valid []byte) {
	g := r.Grid()
	n := int(g.Pixels())
	data = make([]byte, n*8)
	valid = make([]byte, n)
	i := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v, ok := r.At(col, row)
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
			if ok {
				valid[i] = 1
			}
			i++
		}
	}
	return data, valid
}

func decodeCells(g raster.Grid, data, valid []byte) (*raster.Raster, error) {
	n := int(g.Pixels())
	if len(data) != n*8 || len(valid) != n {
		return nil, eris.Errorf("cell blobs sized %d/%d do not match %dx%d grid", len(data), len(valid), g.Width, g.Height)
	}
	r := raster.New(g)
	i := 0
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if valid[i] == 1 {
				r.Set(col, row, math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
			}
			i++
		}
	}
	return r, nil
}
