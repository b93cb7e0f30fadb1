package eventsource

import (
	"context"

	"github.com/louissarvin/reloop/internal/domain"
)

// Handler processes one decoded event. Returning an error aborts the event;
// the source must not advance past it.
type Handler func(ctx context.Context, event *domain.Event) error

// Source streams decoded chain events in order to a handler.
//
//go:generate mockgen -source=source.go -destination=../mocks/source.go -package=mocks -mock_names=Source=MockSource
type Source interface {
	// Run delivers events strictly after the given cursor (nil means from the
	// configured start block) until ctx is canceled or delivery fails.
	Run(ctx context.Context, from *domain.Cursor, handle Handler) error

	// Close releases the underlying connections
	Close()
}
