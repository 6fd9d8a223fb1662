// Package aiparse turns free-text billing requests into structured line-item
// drafts. The collaborator is best effort: any failure degrades to zero
// drafts, never to a user-facing error.
package aiparse

import (
	"context"

	"astrogems/backend/internal/domain"
)

type Parser interface {
	// ParseItems returns zero or more drafts for the given free text. It
	// must not return an error for collaborator failures; those are logged
	// and reported as an empty result.
	ParseItems(ctx context.Context, text string) []domain.ItemDraft
}

// NoopParser is used when no AI backend is configured.
type NoopParser struct{}

func (NoopParser) ParseItems(_ context.Context, _ string) []domain.ItemDraft {
	return nil
}
