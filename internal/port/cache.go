package port

import (
	"context"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// BookCache keeps the latest published book per pair. A miss returns
// (nil, nil).
type BookCache interface {
	SetBook(ctx context.Context, update *domain.BookUpdate) error
	GetBook(ctx context.Context, pair string) (*domain.BookUpdate, error)
	Invalidate(ctx context.Context, pair string) error
}
