package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/CuBnIcK/warfacebot/pkg/model"
)

// SQL is a Directory persisted in SQLite, so a client keeps the last known
// server list across restarts.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens (or creates) a SQLite database and runs migrations.
func OpenSQL(dbPath string) (*SQL, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("directory: open db: %w", err)
	}

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" when two clients share a file
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory: set busy_timeout: %w", err)
	}

	s := &SQL{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) migrate(ctx context.Context) error {
	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version: 1,
			statements: []string{`
	CREATE TABLE IF NOT EXISTS channels (
		resource   TEXT    PRIMARY KEY CHECK(length(resource) > 0 AND length(resource) <= 64),
		server_id  INTEGER NOT NULL DEFAULT 0,
		type       TEXT    NOT NULL DEFAULT '',
		rank_group TEXT    NOT NULL DEFAULT '',
		min_rank   INTEGER NOT NULL DEFAULT 0,
		max_rank   INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT    NOT NULL DEFAULT (datetime('now'))
	)`},
		},
		{
			version: 2,
			statements: []string{
				"ALTER TABLE channels ADD COLUMN load_factor REAL NOT NULL DEFAULT 0",
				"ALTER TABLE channels ADD COLUMN online INTEGER NOT NULL DEFAULT 0",
			},
		},
	}

	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("directory: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("directory: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("directory: init schema_migrations: %w", err)
		}
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&current); err != nil {
		return fmt.Errorf("directory: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("directory: migrate v%d: %w", m.version, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			return fmt.Errorf("directory: update schema version: %w", err)
		}
	}
	return nil
}

const selectChannel = "SELECT resource, server_id, type, rank_group, min_rank, max_rank, load_factor, online FROM channels"

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*model.Channel, error) {
	ch := &model.Channel{}
	if err := row.Scan(&ch.Resource, &ch.ServerID, &ch.Type, &ch.RankGroup, &ch.MinRank, &ch.MaxRank, &ch.Load, &ch.Online); err != nil {
		return nil, err
	}
	return ch, nil
}

// Lookup retrieves a channel by resource.
func (s *SQL) Lookup(resource string) (*model.Channel, error) {
	row := s.db.QueryRowContext(context.Background(), selectChannel+" WHERE resource = ?", resource)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: lookup %q: %w", resource, err)
	}
	return ch, nil
}

// List returns all channels ordered by server id then resource.
func (s *SQL) List() ([]model.Channel, error) {
	rows, err := s.db.QueryContext(context.Background(), selectChannel+" ORDER BY server_id, resource")
	if err != nil {
		return nil, fmt.Errorf("directory: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// Upsert stores or replaces a channel.
func (s *SQL) Upsert(ch *model.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("directory: upsert: %w", err)
	}
	_, err := s.db.ExecContext(context.Background(), `
	INSERT INTO channels (resource, server_id, type, rank_group, min_rank, max_rank, load_factor, online)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(resource) DO UPDATE SET
		server_id = excluded.server_id,
		type = excluded.type,
		rank_group = excluded.rank_group,
		min_rank = excluded.min_rank,
		max_rank = excluded.max_rank,
		load_factor = excluded.load_factor,
		online = excluded.online,
		updated_at = datetime('now')`,
		ch.Resource, ch.ServerID, ch.Type, ch.RankGroup, ch.MinRank, ch.MaxRank, ch.Load, ch.Online,
	)
	if err != nil {
		return fmt.Errorf("directory: upsert %q: %w", ch.Resource, err)
	}
	return nil
}

// Delete removes a channel by resource.
func (s *SQL) Delete(resource string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM channels WHERE resource = ?", resource); err != nil {
		return fmt.Errorf("directory: delete %q: %w", resource, err)
	}
	return nil
}
