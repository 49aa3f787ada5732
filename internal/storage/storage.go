// Package storage defines the persistence interface for the card catalog and
// its fingerprint columns.
package storage

import (
	"context"
	"errors"

	"github.com/shirogane/cardvision/internal/models"
)

// ErrNotFound is returned when a card does not exist.
var ErrNotFound = errors.New("card not found")

// Storage defines card catalog access. The catalog owns the card rows; this
// service reads identity fields and writes only the vector columns.
type Storage interface {
	// Card operations
	UpsertCard(ctx context.Context, card *models.Card) error
	GetCard(ctx context.Context, id string) (*models.Card, error)
	FindCardsByIDs(ctx context.Context, ids []string) (map[string]*models.Card, error)
	ListCards(ctx context.Context, offset, limit int) ([]*models.Card, error)

	// Vector operations
	ListCardsMissingVector(ctx context.Context, kind models.VectorKind) ([]*models.Card, error)
	PersistVector(ctx context.Context, id string, kind models.VectorKind, payload []byte) error
	GetVector(ctx context.Context, id string, kind models.VectorKind) ([]byte, error)
	ListCorpus(ctx context.Context, kind models.VectorKind) ([]models.VectorRow, error)
	ListLegacyVectorRows(ctx context.Context, kind models.VectorKind, limit int) ([]models.VectorRow, error)
	ClearVectors(ctx context.Context, kind models.VectorKind) (int64, error)

	// Cache support
	ListIdentifiers(ctx context.Context) ([]string, error)

	// Stats
	CountCards(ctx context.Context) (int64, error)
	CountWithIdentifier(ctx context.Context) (int64, error)
	CountWithVector(ctx context.Context, kind models.VectorKind) (int64, error)

	Close() error
}
