// Package ordering allocates sparse integer positions for items that are
// ordered among siblings sharing a parent scope (stories inside a workflow
// status, statuses inside a workflow).
//
// New items are appended at max+offset. Moving items before or after an
// anchor splits the gap between the anchor and its neighbor; when the gap is
// exhausted the following siblings are renumbered in the same transaction so
// an insert never fails for lack of integer space.
package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Order is the sortable position of an item inside its scope.
type Order int64

// DefaultOffset is the gap left between freshly appended siblings.
const DefaultOffset Order = 100

type Place string

const (
	PlaceBefore Place = "before"
	PlaceAfter  Place = "after"
)

func ParsePlace(value string) (Place, error) {
	switch Place(strings.ToLower(strings.TrimSpace(value))) {
	case PlaceBefore:
		return PlaceBefore, nil
	case PlaceAfter:
		return PlaceAfter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlace, value)
	}
}

// Anchor positions moved items relative to an existing sibling.
type Anchor struct {
	Place  Place  `json:"place"`
	ItemID string `json:"itemId"`
}

// Item is the ordering view of a story or workflow status. Group is the
// container above the scope (the workflow of a story, the project of a
// status) and bounds which items may be moved together.
type Item struct {
	ID    string
	Scope string
	Group string
	Order Order
}

type Neighbors struct {
	Prev *Item
	Next *Item
}

type Request struct {
	Scope   string
	ItemIDs []string
	Anchor  *Anchor
	// Group, when set, must match the group of every moved item and of the anchor.
	Group string
}

// Placement is a single row of the bulk write.
type Placement struct {
	ID        string
	Scope     string
	Order     Order
	PrevScope string
}

func (p Placement) ScopeChanged() bool {
	return p.PrevScope != "" && p.PrevScope != p.Scope
}

type Result struct {
	Scope string
	// Moved follows the sequence of the request.
	Moved []Placement
	// Shifted holds siblings renumbered to make room.
	Shifted []Placement
}

// Orders maps every written item id to its new order.
func (r Result) Orders() map[string]Order {
	out := make(map[string]Order, len(r.Moved)+len(r.Shifted))
	for _, p := range r.Moved {
		out[p.ID] = p.Order
	}
	for _, p := range r.Shifted {
		out[p.ID] = p.Order
	}
	return out
}

// View is a transaction-scoped handle on the persistence gateway. All reads
// made through one View observe the same snapshot as its writes.
type View interface {
	Resolve(ctx context.Context, ids []string) ([]Item, error)
	Get(ctx context.Context, id string) (Item, bool, error)
	MaxOrder(ctx context.Context, scope string, exclude []string) (Order, bool, error)
	Neighbors(ctx context.Context, scope string, order Order, exclude []string) (Neighbors, error)
	// Following returns the siblings with an order strictly greater than
	// order, ascending.
	Following(ctx context.Context, scope string, order Order, exclude []string) ([]Item, error)
	List(ctx context.Context, scope string) ([]Item, error)
	Write(ctx context.Context, placements []Placement) error
}

// Store runs fn inside one atomic transaction covering scope. An error
// returned by fn rolls the transaction back. fn may be invoked more than once
// when the store retries a serialization failure.
type Store interface {
	WithinScope(ctx context.Context, scope string, fn func(View) error) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type ReorderedEvent struct {
	Collection string
	Scope      string
	ItemIDs    []string
	Anchor     *Anchor
	At         time.Time
}

type ScopeChangedEvent struct {
	Collection string
	ItemID     string
	FromScope  string
	ToScope    string
	At         time.Time
}

// Notifier receives events after a successful commit. Implementations must
// not block the caller on delivery failures.
type Notifier interface {
	ItemsReordered(ctx context.Context, event ReorderedEvent)
	ItemScopeChanged(ctx context.Context, event ScopeChangedEvent)
}

type nopNotifier struct{}

func (nopNotifier) ItemsReordered(context.Context, ReorderedEvent)      {}
func (nopNotifier) ItemScopeChanged(context.Context, ScopeChangedEvent) {}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
