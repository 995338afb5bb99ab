package ordering

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCalculateOffset(t *testing.T) {
	view := &memView{items: map[string]Item{
		"a": {ID: "a", Scope: "todo", Order: 100},
		"b": {ID: "b", Scope: "todo", Order: 200},
		"c": {ID: "c", Scope: "todo", Order: 300},
		"t": {ID: "t", Scope: "tight", Order: 250},
		"u": {ID: "u", Scope: "tight", Order: 251},
	}}
	ctx := context.Background()
	ref := func(id string) *Item {
		item := view.items[id]
		return &item
	}

	tests := []struct {
		name      string
		scope     string
		n         int
		place     Place
		ref       *Item
		exclude   []string
		wantPre   Order
		wantStep  Order
		wantBound Order
		fits      bool
	}{
		{name: "append empty", scope: "none", n: 3, wantPre: 0, wantStep: 100, fits: true},
		{name: "append", scope: "todo", n: 1, wantPre: 300, wantStep: 100, fits: true},
		{name: "append excludes moved", scope: "todo", n: 1, exclude: []string{"c"}, wantPre: 200, wantStep: 100, fits: true},
		{name: "after middle", scope: "todo", n: 1, place: PlaceAfter, ref: ref("a"), wantPre: 100, wantStep: 50, wantBound: 200, fits: true},
		{name: "after middle three", scope: "todo", n: 3, place: PlaceAfter, ref: ref("a"), wantPre: 100, wantStep: 25, wantBound: 200, fits: true},
		{name: "after last", scope: "todo", n: 2, place: PlaceAfter, ref: ref("c"), wantPre: 300, wantStep: 100, fits: true},
		{name: "before first", scope: "todo", n: 1, place: PlaceBefore, ref: ref("a"), wantPre: 0, wantStep: 50, wantBound: 100, fits: true},
		{name: "before middle", scope: "todo", n: 1, place: PlaceBefore, ref: ref("b"), wantPre: 100, wantStep: 50, wantBound: 200, fits: true},
		{name: "before skips moved prev", scope: "todo", n: 1, place: PlaceBefore, ref: ref("c"), exclude: []string{"b"}, wantPre: 100, wantStep: 100, wantBound: 300, fits: true},
		{name: "no room", scope: "tight", n: 1, place: PlaceAfter, ref: ref("t"), wantPre: 250, wantStep: 100, wantBound: 251, fits: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := CalculateOffset(ctx, view, tc.scope, tc.n, tc.place, tc.ref, tc.exclude, DefaultOffset)
			if err != nil {
				t.Fatalf("CalculateOffset failed: %v", err)
			}
			if w.PreOrder != tc.wantPre || w.Offset != tc.wantStep {
				t.Fatalf("expected pre=%d offset=%d, got pre=%d offset=%d", tc.wantPre, tc.wantStep, w.PreOrder, w.Offset)
			}
			if tc.wantBound == 0 && w.Bound != nil {
				t.Fatalf("expected open window, got bound %d", *w.Bound)
			}
			if tc.wantBound != 0 && (w.Bound == nil || *w.Bound != tc.wantBound) {
				t.Fatalf("expected bound %d, got %v", tc.wantBound, w.Bound)
			}
			if got := w.Fits(tc.n); got != tc.fits {
				t.Fatalf("expected fits=%v, got %v", tc.fits, got)
			}
		})
	}
}

func TestCalculateOffsetRejectsUnknownPlace(t *testing.T) {
	view := &memView{items: map[string]Item{"a": {ID: "a", Scope: "todo", Order: 100}}}
	item := view.items["a"]
	_, err := CalculateOffset(context.Background(), view, "todo", 1, Place("inside"), &item, nil, DefaultOffset)
	if !errors.Is(err, ErrInvalidPlace) {
		t.Fatalf("expected ErrInvalidPlace, got %v", err)
	}
}

func TestWindowAtOverflow(t *testing.T) {
	w := Window{PreOrder: Order(math.MaxInt64 - 50), Offset: 100}
	if _, err := w.At(1); !errors.Is(err, ErrOrderOverflow) {
		t.Fatalf("expected ErrOrderOverflow, got %v", err)
	}
	if w.Fits(1) != true {
		t.Fatal("open window always fits")
	}
	bound := Order(math.MaxInt64)
	w.Bound = &bound
	if w.Fits(1) {
		t.Fatal("overflowing window cannot fit")
	}
}

func TestParsePlace(t *testing.T) {
	for input, want := range map[string]Place{"before": PlaceBefore, " AFTER ": PlaceAfter} {
		got, err := ParsePlace(input)
		if err != nil || got != want {
			t.Fatalf("ParsePlace(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParsePlace("between"); !errors.Is(err, ErrInvalidPlace) {
		t.Fatalf("expected ErrInvalidPlace, got %v", err)
	}
}

func TestErrorMessages(t *testing.T) {
	ref := &InvalidReferenceError{IDs: []string{"a", "b"}, Reason: "not found"}
	if got := ref.Error(); got != "invalid reference a, b: not found" {
		t.Fatalf("unexpected message %q", got)
	}
	anchor := &InvalidAnchorError{ItemID: "x", Reason: "not found"}
	if got := anchor.Error(); got != "invalid anchor x: not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if IsValidation(errors.New("boom")) {
		t.Fatal("plain errors are not validation errors")
	}
}
