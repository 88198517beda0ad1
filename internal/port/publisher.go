package port

import (
	"context"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Publisher forwards book updates to some broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, update domain.BookUpdate) error
}
