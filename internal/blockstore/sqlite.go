package blockstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteFileName = "blocks.sqlite"

// SQLite is a Store backed by a single local SQLite database file.
type SQLite struct {
	db  *sql.DB
	log *log.Logger
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the blocks database inside dir.
func OpenSQLite(ctx context.Context, dir string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite"; pragmas go in the DSN so every
	// pooled connection gets them.
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + filepath.Join(dir, sqliteFileName) + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; the sync workers queue behind it.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, log: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			content_type TEXT NOT NULL,
			content_json TEXT NOT NULL,
			position_x REAL NOT NULL,
			position_y REAL NOT NULL,
			position_index INTEGER NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_board ON blocks(board_id, position_index);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate blocks: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (Block, error) {
	var (
		b                  Block
		contentType, raw   string
		createdMs, updated int64
	)
	if err := r.Scan(&b.ID, &b.BoardID, &contentType, &raw, &b.PositionX, &b.PositionY, &b.PositionIndex, &createdMs, &updated); err != nil {
		return Block{}, err
	}
	b.ContentType = ContentType(contentType)
	if err := json.Unmarshal([]byte(raw), &b.Content); err != nil {
		return Block{}, fmt.Errorf("decode content of %s: %w", b.ID, err)
	}
	b.CreatedAt = time.UnixMilli(createdMs).UTC()
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

const blockColumns = `id, board_id, content_type, content_json, position_x, position_y, position_index, created_at_unixms, updated_at_unixms`

func (s *SQLite) List(ctx context.Context, boardID string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE board_id = ? ORDER BY position_index, created_at_unixms, id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Block{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) Create(ctx context.Context, b Block) (Block, error) {
	if err := Validate(b); err != nil {
		return Block{}, err
	}
	if strings.TrimSpace(b.ID) == "" {
		b.ID = uuid.NewString()
	}
	if b.Content == nil {
		b.Content = map[string]any{}
	}
	raw, err := json.Marshal(b.Content)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	b.CreatedAt, b.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Block{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE id = ?`, b.ID).Scan(&exists)
	switch {
	case err == nil:
		return Block{}, fmt.Errorf("%w: %s", ErrConflict, b.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return Block{}, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO blocks(`+blockColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BoardID, string(b.ContentType), string(raw), b.PositionX, b.PositionY, b.PositionIndex,
		now.UnixMilli(), now.UnixMilli(),
	); err != nil {
		return Block{}, err
	}
	if err := tx.Commit(); err != nil {
		return Block{}, err
	}
	s.log.WithFields(log.Fields{"op": "create", "board": b.BoardID, "block": b.ID}).Debug("block stored")
	return b, nil
}

func (s *SQLite) Update(ctx context.Context, id string, p Patch) (Block, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Block{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := scanBlock(tx.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Block{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Block{}, err
	}

	b = p.Apply(b)
	b.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
	raw, err := json.Marshal(b.Content)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE blocks SET content_json = ?, position_x = ?, position_y = ?, position_index = ?, updated_at_unixms = ? WHERE id = ?`,
		string(raw), b.PositionX, b.PositionY, b.PositionIndex, b.UpdatedAt.UnixMilli(), id,
	); err != nil {
		return Block{}, err
	}
	if err := tx.Commit(); err != nil {
		return Block{}, err
	}
	return b, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
