package events

import (
	"context"
	"log/slog"

	"kanban/api/internal/ordering"
)

// LogNotifier writes every notification to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ItemsReordered(ctx context.Context, event ordering.ReorderedEvent) {
	attrs := []any{
		"collection", event.Collection,
		"scope", event.Scope,
		"items", event.ItemIDs,
	}
	if event.Anchor != nil {
		attrs = append(attrs, "place", string(event.Anchor.Place), "anchor", event.Anchor.ItemID)
	}
	n.logger.InfoContext(ctx, TypeItemsReordered, attrs...)
}

func (n *LogNotifier) ItemScopeChanged(ctx context.Context, event ordering.ScopeChangedEvent) {
	n.logger.InfoContext(ctx, TypeItemScopeChanged,
		"collection", event.Collection,
		"item", event.ItemID,
		"from", event.FromScope,
		"to", event.ToScope,
	)
}
