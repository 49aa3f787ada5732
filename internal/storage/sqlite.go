// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shirogane/cardvision/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		identifier TEXT,
		feature_vector TEXT,
		concept_vector TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cards_identifier ON cards(identifier);
	`
	_, err := db.Exec(schema)
	return err
}

// vectorColumn maps a vector kind to its column name. Kinds are a closed set
// so this never interpolates caller input into SQL.
func vectorColumn(kind models.VectorKind) (string, error) {
	switch kind {
	case models.VectorKindFeature:
		return "feature_vector", nil
	case models.VectorKindConcept:
		return "concept_vector", nil
	default:
		return "", fmt.Errorf("unknown vector kind: %s", kind)
	}
}

// UpsertCard inserts or updates a card's identity fields. Vector columns are
// left untouched on update.
func (s *SQLiteStorage) UpsertCard(ctx context.Context, card *models.Card) error {
	now := time.Now()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, name, identifier, created_at, updated_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   identifier = excluded.identifier,
		   updated_at = excluded.updated_at`,
		card.ID, card.Name, card.Identifier, card.CreatedAt, card.UpdatedAt,
	)
	return err
}

// GetCard returns a card by ID.
func (s *SQLiteStorage) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	var identifier sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, identifier, created_at, updated_at FROM cards WHERE id = ?`, id,
	).Scan(&card.ID, &card.Name, &identifier, &card.CreatedAt, &card.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	card.Identifier = identifier.String
	return &card, nil
}

// FindCardsByIDs returns the cards for the given IDs, keyed by ID.
// Missing IDs are simply absent from the map.
func (s *SQLiteStorage) FindCardsByIDs(ctx context.Context, ids []string) (map[string]*models.Card, error) {
	if len(ids) == 0 {
		return map[string]*models.Card{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, identifier, created_at, updated_at FROM cards WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]*models.Card, len(ids))
	for rows.Next() {
		var card models.Card
		var identifier sql.NullString
		if err := rows.Scan(&card.ID, &card.Name, &identifier, &card.CreatedAt, &card.UpdatedAt); err != nil {
			return nil, err
		}
		card.Identifier = identifier.String
		found[card.ID] = &card
	}
	return found, rows.Err()
}

// ListCards returns cards ordered by name with offset and limit.
func (s *SQLiteStorage) ListCards(ctx context.Context, offset, limit int) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, identifier, created_at, updated_at
		 FROM cards ORDER BY name LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

// ListCardsMissingVector returns cards that have an image identifier but no
// persisted vector of the given kind. This selection is what makes the batch
// pipeline resumable: a rerun only sees the remainder.
func (s *SQLiteStorage) ListCardsMissingVector(ctx context.Context, kind models.VectorKind) ([]*models.Card, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, identifier, created_at, updated_at
		 FROM cards WHERE identifier IS NOT NULL AND `+col+` IS NULL
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

func scanCards(rows *sql.Rows) ([]*models.Card, error) {
	var cards []*models.Card
	for rows.Next() {
		var card models.Card
		var identifier sql.NullString
		if err := rows.Scan(&card.ID, &card.Name, &identifier, &card.CreatedAt, &card.UpdatedAt); err != nil {
			return nil, err
		}
		card.Identifier = identifier.String
		cards = append(cards, &card)
	}
	return cards, rows.Err()
}

// PersistVector writes the vector payload for one card. Each card's vector is
// written independently; no cross-entity transaction is needed.
func (s *SQLiteStorage) PersistVector(ctx context.Context, id string, kind models.VectorKind, payload []byte) error {
	col, err := vectorColumn(kind)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE cards SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		string(payload), time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GetVector returns the raw persisted payload for one card, or ErrNotFound
// when the card does not exist. A card without a vector returns nil payload.
func (s *SQLiteStorage) GetVector(ctx context.Context, id string, kind models.VectorKind) ([]byte, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return nil, err
	}
	var payload sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT `+col+` FROM cards WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !payload.Valid {
		return nil, nil
	}
	return []byte(payload.String), nil
}

// ListCorpus returns all cards that have a persisted vector of the given
// kind, with the raw payload. Used by the ranker to take a read-only
// snapshot for one query.
func (s *SQLiteStorage) ListCorpus(ctx context.Context, kind models.VectorKind) ([]models.VectorRow, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(identifier, ''), `+col+`
		 FROM cards WHERE `+col+` IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVectorRows(rows)
}

// ListLegacyVectorRows returns up to limit rows whose persisted payload does
// not start with the current tagged format marker. Used by the bounded
// migration pass; the ranking path never needs this.
func (s *SQLiteStorage) ListLegacyVectorRows(ctx context.Context, kind models.VectorKind, limit int) ([]models.VectorRow, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(identifier, ''), `+col+`
		 FROM cards WHERE `+col+` IS NOT NULL AND `+col+` NOT LIKE '{"f":%'
		 ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVectorRows(rows)
}

func scanVectorRows(rows *sql.Rows) ([]models.VectorRow, error) {
	var out []models.VectorRow
	for rows.Next() {
		var row models.VectorRow
		var payload string
		if err := rows.Scan(&row.CardID, &row.Name, &row.Identifier, &payload); err != nil {
			return nil, err
		}
		row.Payload = []byte(payload)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ClearVectors nulls the vector column of the given kind for all cards and
// returns the number of rows cleared. Used to force a full re-embed.
func (s *SQLiteStorage) ClearVectors(ctx context.Context, kind models.VectorKind) (int64, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE cards SET `+col+` = NULL, updated_at = ? WHERE `+col+` IS NOT NULL`,
		time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListIdentifiers returns the identifiers of all cards that have one.
// Used by the image cache orphan cleanup.
func (s *SQLiteStorage) ListIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier FROM cards WHERE identifier IS NOT NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountCards returns the total number of cards.
func (s *SQLiteStorage) CountCards(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count)
	return count, err
}

// CountWithIdentifier returns the number of cards with an image identifier.
func (s *SQLiteStorage) CountWithIdentifier(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE identifier IS NOT NULL`).Scan(&count)
	return count, err
}

// CountWithVector returns the number of cards with a persisted vector of the given kind.
func (s *SQLiteStorage) CountWithVector(ctx context.Context, kind models.VectorKind) (int64, error) {
	col, err := vectorColumn(kind)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE `+col+` IS NOT NULL`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
