// Package events delivers ordering notifications after commit.
package events

import (
	"context"
	"time"

	"kanban/api/internal/ordering"
)

const (
	TypeItemsReordered   = "items.reordered"
	TypeItemScopeChanged = "item.scope_changed"
)

// Event is the wire form of an ordering notification.
type Event struct {
	Type       string           `json:"type"`
	Collection string           `json:"collection"`
	Scope      string           `json:"scope,omitempty"`
	ItemIDs    []string         `json:"itemIds,omitempty"`
	Anchor     *ordering.Anchor `json:"anchor,omitempty"`
	FromScope  string           `json:"fromScope,omitempty"`
	ToScope    string           `json:"toScope,omitempty"`
	At         time.Time        `json:"at"`
}

func FromReordered(e ordering.ReorderedEvent) Event {
	return Event{
		Type:       TypeItemsReordered,
		Collection: e.Collection,
		Scope:      e.Scope,
		ItemIDs:    e.ItemIDs,
		Anchor:     e.Anchor,
		At:         e.At,
	}
}

func FromScopeChanged(e ordering.ScopeChangedEvent) Event {
	return Event{
		Type:       TypeItemScopeChanged,
		Collection: e.Collection,
		ItemIDs:    []string{e.ItemID},
		FromScope:  e.FromScope,
		ToScope:    e.ToScope,
		At:         e.At,
	}
}

// Multi fans every notification out to each notifier in turn.
type Multi []ordering.Notifier

func (m Multi) ItemsReordered(ctx context.Context, event ordering.ReorderedEvent) {
	for _, n := range m {
		n.ItemsReordered(ctx, event)
	}
}

func (m Multi) ItemScopeChanged(ctx context.Context, event ordering.ScopeChangedEvent) {
	for _, n := range m {
		n.ItemScopeChanged(ctx, event)
	}
}
