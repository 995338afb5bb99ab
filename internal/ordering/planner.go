package ordering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Options struct {
	Locker   Locker
	Notifier Notifier
	Offset   Order
	Logger   *slog.Logger
}

// Planner assigns orders for one collection (stories, workflow statuses).
type Planner struct {
	collection string
	store      Store
	locker     Locker
	notifier   Notifier
	offset     Order
	logger     *slog.Logger
	now        func() time.Time
}

func NewPlanner(collection string, store Store, opts Options) *Planner {
	p := &Planner{
		collection: collection,
		store:      store,
		locker:     opts.Locker,
		notifier:   opts.Notifier,
		offset:     opts.Offset,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if p.locker == nil {
		p.locker = nopLocker{}
	}
	if p.notifier == nil {
		p.notifier = nopNotifier{}
	}
	if p.offset <= 0 {
		p.offset = DefaultOffset
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *Planner) Collection() string { return p.collection }

func (p *Planner) Offset() Order { return p.offset }

// Lock takes the in-flight lock of scope. Creations that append to a scope
// take it too so they never interleave with a reorder of the same scope.
func (p *Planner) Lock(ctx context.Context, scope string) (func(), error) {
	release, err := p.locker.Lock(ctx, p.collection+":"+scope)
	if err != nil {
		return nil, fmt.Errorf("lock %s scope %s: %w", p.collection, scope, err)
	}
	return release, nil
}

// Reorder moves req.ItemIDs, in the given sequence, into req.Scope. Nothing
// is written when validation fails.
func (p *Planner) Reorder(ctx context.Context, req Request) (Result, error) {
	ids, err := validateRequest(req)
	if err != nil {
		return Result{}, err
	}

	release, err := p.Lock(ctx, req.Scope)
	if err != nil {
		return Result{}, err
	}
	defer release()

	var result Result
	err = p.store.WithinScope(ctx, req.Scope, func(view View) error {
		planned, err := p.plan(ctx, view, req, ids)
		if err != nil {
			return err
		}
		writes := make([]Placement, 0, len(planned.Moved)+len(planned.Shifted))
		writes = append(writes, planned.Moved...)
		writes = append(writes, planned.Shifted...)
		if err := view.Write(ctx, writes); err != nil {
			return fmt.Errorf("write orders: %w", err)
		}
		result = planned
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	p.logger.Debug("items reordered",
		"collection", p.collection,
		"scope", req.Scope,
		"moved", len(result.Moved),
		"shifted", len(result.Shifted),
	)
	p.notifyReorder(ctx, req.Scope, ids, req.Anchor, result.Moved)
	return result, nil
}

func validateRequest(req Request) ([]string, error) {
	if strings.TrimSpace(req.Scope) == "" {
		return nil, &InvalidReferenceError{Reason: "target scope is required"}
	}
	if len(req.ItemIDs) == 0 {
		return nil, ErrEmptyRequest
	}
	ids := make([]string, 0, len(req.ItemIDs))
	seen := make(map[string]struct{}, len(req.ItemIDs))
	var duplicated []string
	for _, id := range req.ItemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &InvalidReferenceError{Reason: "empty item id"}
		}
		if _, ok := seen[id]; ok {
			duplicated = append(duplicated, id)
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(duplicated) > 0 {
		return nil, &InvalidReferenceError{IDs: duplicated, Reason: "listed more than once"}
	}
	if req.Anchor != nil {
		if _, err := ParsePlace(string(req.Anchor.Place)); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Anchor.ItemID) == "" {
			return nil, &InvalidAnchorError{Reason: "anchor item is required"}
		}
		if _, ok := seen[req.Anchor.ItemID]; ok {
			return nil, &InvalidAnchorError{ItemID: req.Anchor.ItemID, Reason: "anchor cannot be one of the moved items"}
		}
	}
	return ids, nil
}

func (p *Planner) plan(ctx context.Context, view View, req Request, ids []string) (Result, error) {
	resolved, err := view.Resolve(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("resolve items: %w", err)
	}
	byID := make(map[string]Item, len(resolved))
	for _, item := range resolved {
		byID[item.ID] = item
	}
	var missing, foreign []string
	for _, id := range ids {
		item, ok := byID[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case req.Group != "" && item.Group != req.Group:
			foreign = append(foreign, id)
		}
	}
	if len(missing) > 0 {
		return Result{}, &InvalidReferenceError{IDs: missing, Reason: "not found"}
	}
	if len(foreign) > 0 {
		return Result{}, &InvalidReferenceError{IDs: foreign, Reason: "not part of " + req.Group}
	}
	if len(byID) != len(ids) {
		return Result{}, &InvalidReferenceError{Reason: fmt.Sprintf("resolved %d of %d items", len(byID), len(ids))}
	}

	var ref *Item
	var place Place
	if req.Anchor != nil {
		place, _ = ParsePlace(string(req.Anchor.Place))
		anchor, ok, err := view.Get(ctx, req.Anchor.ItemID)
		if err != nil {
			return Result{}, fmt.Errorf("get anchor: %w", err)
		}
		if !ok {
			return Result{}, &InvalidAnchorError{ItemID: req.Anchor.ItemID, Reason: "not found"}
		}
		if anchor.Scope != req.Scope {
			return Result{}, &InvalidAnchorError{ItemID: anchor.ID, Reason: "not in target scope " + req.Scope}
		}
		if req.Group != "" && anchor.Group != req.Group {
			return Result{}, &InvalidAnchorError{ItemID: anchor.ID, Reason: "not part of " + req.Group}
		}
		ref = &anchor
	}

	window, err := CalculateOffset(ctx, view, req.Scope, len(ids), place, ref, ids, p.offset)
	if err != nil {
		return Result{}, err
	}

	var shifted []Item
	if !window.Fits(len(ids)) {
		window, shifted, err = p.widen(ctx, view, req.Scope, window, len(ids), ids)
		if err != nil {
			return Result{}, err
		}
	}

	result := Result{Scope: req.Scope}
	for i, id := range ids {
		order, err := window.At(i + 1)
		if err != nil {
			return Result{}, err
		}
		result.Moved = append(result.Moved, Placement{
			ID:        id,
			Scope:     req.Scope,
			Order:     order,
			PrevScope: byID[id].Scope,
		})
	}
	for i, sibling := range shifted {
		order, err := window.At(len(ids) + i + 1)
		if err != nil {
			return Result{}, err
		}
		result.Shifted = append(result.Shifted, Placement{
			ID:        sibling.ID,
			Scope:     req.Scope,
			Order:     order,
			PrevScope: sibling.Scope,
		})
	}
	return result, nil
}

// widen grows the window past siblings packed too tightly after PreOrder.
// Absorbed siblings are renumbered after the moved items, keeping their
// relative sequence.
func (p *Planner) widen(ctx context.Context, view View, scope string, window Window, n int, exclude []string) (Window, []Item, error) {
	following, err := view.Following(ctx, scope, window.PreOrder, exclude)
	if err != nil {
		return Window{}, nil, fmt.Errorf("following siblings: %w", err)
	}
	slots := Order(n + 1)
	offset := p.offset
	var absorbed []Item
	var bound *Order
	for _, sibling := range following {
		gap := sibling.Order - window.PreOrder
		if gap < slots {
			absorbed = append(absorbed, sibling)
			slots++
			continue
		}
		offset = gap / slots
		next := sibling.Order
		bound = &next
		break
	}
	p.logger.Debug("order window widened",
		"collection", p.collection,
		"scope", scope,
		"pre_order", int64(window.PreOrder),
		"absorbed", len(absorbed),
	)
	return Window{PreOrder: window.PreOrder, Offset: offset, Bound: bound}, absorbed, nil
}

// Rebalance respaces every item of scope to offset, 2*offset, ... keeping the
// current sequence.
func (p *Planner) Rebalance(ctx context.Context, scope string) (Result, error) {
	if strings.TrimSpace(scope) == "" {
		return Result{}, &InvalidReferenceError{Reason: "scope is required"}
	}
	release, err := p.Lock(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	defer release()

	var result Result
	err = p.store.WithinScope(ctx, scope, func(view View) error {
		items, err := view.List(ctx, scope)
		if err != nil {
			return fmt.Errorf("list scope: %w", err)
		}
		planned := Result{Scope: scope}
		for i, item := range items {
			order, err := advance(0, p.offset, int64(i+1))
			if err != nil {
				return err
			}
			planned.Moved = append(planned.Moved, Placement{ID: item.ID, Scope: scope, Order: order, PrevScope: item.Scope})
		}
		if len(planned.Moved) == 0 {
			result = planned
			return nil
		}
		if err := view.Write(ctx, planned.Moved); err != nil {
			return fmt.Errorf("write orders: %w", err)
		}
		result = planned
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if len(result.Moved) > 0 {
		ids := make([]string, 0, len(result.Moved))
		for _, placement := range result.Moved {
			ids = append(ids, placement.ID)
		}
		p.notifyReorder(ctx, scope, ids, nil, nil)
	}
	return result, nil
}

// List returns the siblings of scope by ascending order.
func (p *Planner) List(ctx context.Context, scope string) ([]Item, error) {
	var items []Item
	err := p.store.WithinScope(ctx, scope, func(view View) error {
		listed, err := view.List(ctx, scope)
		if err != nil {
			return err
		}
		items = listed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s scope %s: %w", p.collection, scope, err)
	}
	return items, nil
}

func (p *Planner) notifyReorder(ctx context.Context, scope string, ids []string, anchor *Anchor, moved []Placement) {
	at := p.now().UTC()
	p.notifier.ItemsReordered(ctx, ReorderedEvent{
		Collection: p.collection,
		Scope:      scope,
		ItemIDs:    append([]string(nil), ids...),
		Anchor:     anchor,
		At:         at,
	})
	for _, placement := range moved {
		if !placement.ScopeChanged() {
			continue
		}
		p.notifier.ItemScopeChanged(ctx, ScopeChangedEvent{
			Collection: p.collection,
			ItemID:     placement.ID,
			FromScope:  placement.PrevScope,
			ToScope:    placement.Scope,
			At:         at,
		})
	}
}
