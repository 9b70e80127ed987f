package conntable

import (
	"testing"

	"github.com/hintproxy/hintproxy/internal/record"
	"github.com/hintproxy/hintproxy/pkg/constants"
)

func TestPutGetRemove(t *testing.T) {
	tb := New()
	c := record.New(42, record.RoleClient)
	tb.Put(c)

	got, ok := tb.Get(42)
	if !ok || got.Handle != 42 {
		t.Fatalf("expected to find handle 42, got %v ok=%v", got, ok)
	}

	tb.Remove(42)
	if _, ok := tb.Get(42); ok {
		t.Fatalf("expected handle 42 to be removed")
	}
}

func TestGetMissingHandle(t *testing.T) {
	tb := New()
	if _, ok := tb.Get(999); ok {
		t.Fatalf("expected miss on empty table")
	}
}

func TestExpandsUnderLoad(t *testing.T) {
	tb := New()
	initial := tb.size

	toInsert := int(float64(initial)*constants.TableLoadFactor) + 5
	for i := 0; i < toInsert; i++ {
		tb.Put(record.New(i, record.RoleClient))
	}

	if tb.size <= initial {
		t.Fatalf("expected table to grow past %d, got %d", initial, tb.size)
	}
	if tb.size != initial*constants.TableGrowFactor+constants.TableGrowConstant {
		t.Fatalf("unexpected new size %d", tb.size)
	}

	for i := 0; i < toInsert; i++ {
		if _, ok := tb.Get(i); !ok {
			t.Fatalf("handle %d lost during expansion", i)
		}
	}
}

func TestNeverExceedsMaxTableSize(t *testing.T) {
	tb := newWithSize(constants.MaxTableSize - 1)
	for i := 0; i < constants.MaxTableSize; i++ {
		tb.Put(record.New(i, record.RoleClient))
	}
	if tb.size > constants.MaxTableSize {
		t.Fatalf("table grew past cap: %d", tb.size)
	}
}
