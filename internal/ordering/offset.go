package ordering

import (
	"context"
	"fmt"
	"math"
)

// Window describes where a run of items is inserted: the i-th item (1-indexed)
// receives PreOrder + Offset*i. Bound is the order of the first sibling after
// the window, nil when the window is open-ended.
type Window struct {
	PreOrder Order
	Offset   Order
	Bound    *Order
}

// At returns the order of the i-th item of the window.
func (w Window) At(i int) (Order, error) {
	return advance(w.PreOrder, w.Offset, int64(i))
}

// Fits reports whether n items fit strictly below Bound.
func (w Window) Fits(n int) bool {
	if w.Bound == nil {
		return true
	}
	last, err := w.At(n)
	if err != nil {
		return false
	}
	return last < *w.Bound
}

// CalculateOffset estimates the window for n items. ref is the resolved
// anchor (nil to append at the end of scope). exclude lists the items being
// moved, which never count as neighbors. The returned offset is only an
// estimate: when the gap is too small it falls back to base and the caller
// must check Fits.
func CalculateOffset(ctx context.Context, view View, scope string, n int, place Place, ref *Item, exclude []string, base Order) (Window, error) {
	if base <= 0 {
		base = DefaultOffset
	}
	slots := Order(n + 1)

	if ref == nil {
		maxOrder, ok, err := view.MaxOrder(ctx, scope, exclude)
		if err != nil {
			return Window{}, fmt.Errorf("max order: %w", err)
		}
		if !ok {
			maxOrder = 0
		}
		return Window{PreOrder: maxOrder, Offset: base}, nil
	}

	neighbors, err := view.Neighbors(ctx, scope, ref.Order, exclude)
	if err != nil {
		return Window{}, fmt.Errorf("neighbors of %s: %w", ref.ID, err)
	}

	switch place {
	case PlaceAfter:
		if neighbors.Next == nil {
			return Window{PreOrder: ref.Order, Offset: base}, nil
		}
		bound := neighbors.Next.Order
		return Window{
			PreOrder: ref.Order,
			Offset:   spacing(bound-ref.Order, slots, base),
			Bound:    &bound,
		}, nil
	case PlaceBefore:
		bound := ref.Order
		pre := Order(0)
		if neighbors.Prev != nil {
			pre = neighbors.Prev.Order
		} else if ref.Order <= 0 {
			// Nothing below zero to split; open room under the anchor.
			pre = ref.Order - base*slots
		}
		return Window{
			PreOrder: pre,
			Offset:   spacing(bound-pre, slots, base),
			Bound:    &bound,
		}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPlace, place)
	}
}

func spacing(gap, slots, base Order) Order {
	if gap <= 0 || slots <= 0 {
		return base
	}
	offset := gap / slots
	if offset < 1 {
		return base
	}
	return offset
}

func advance(pre, offset Order, k int64) (Order, error) {
	step := int64(offset)
	if step < 0 || k < 0 {
		return 0, fmt.Errorf("%w: negative step", ErrOrderOverflow)
	}
	if step != 0 && k > math.MaxInt64/step {
		return 0, ErrOrderOverflow
	}
	delta := step * k
	if pre > 0 && delta > math.MaxInt64-int64(pre) {
		return 0, ErrOrderOverflow
	}
	return pre + Order(delta), nil
}
