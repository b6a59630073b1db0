package alerts

import (
	"errors"
	"sync"
	"testing"
)

func TestAddRejectsInvalidSpecs(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)

	if _, err := r.Add(1, "", Above, d("100")); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("empty symbol: err = %v, want ErrInvalidSpec", err)
	}
	if _, err := r.Add(1, "bitcoin", Above, d("0")); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("zero threshold: err = %v, want ErrInvalidSpec", err)
	}
	if _, err := r.Add(1, "bitcoin", Above, d("-5")); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("negative threshold: err = %v, want ErrInvalidSpec", err)
	}
	if r.Len() != 0 {
		t.Fatalf("invalid specs must not enter the registry, Len = %d", r.Len())
	}
}

func TestAddNormalizesSymbol(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	id, err := r.Add(42, "  BitCoin ", Above, d("50000"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := r.ListByOwner(42)
	if len(got) != 1 || got[0].ID != id || got[0].Symbol != "bitcoin" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestRemoveByOwnerAndSymbol(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	mustAdd(t, r, 1, "bitcoin", Above, "50000")
	mustAdd(t, r, 1, "bitcoin", Below, "30000")
	mustAdd(t, r, 1, "ethereum", Above, "4000")
	mustAdd(t, r, 2, "bitcoin", Above, "60000")

	if n := r.RemoveByOwnerAndSymbol(1, "BITCOIN"); n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	if n := r.RemoveByOwnerAndSymbol(1, "bitcoin"); n != 0 {
		t.Fatalf("second removal = %d, want 0", n)
	}
	if got := r.ListByOwner(2); len(got) != 1 {
		t.Fatalf("other owner's alerts must survive, got %+v", got)
	}
}

func TestRemoveClaimsExactlyOnce(t *testing.T) {
	t.Parallel()
	r := NewRegistry(0)
	id := mustAdd(t, r, 1, "bitcoin", Above, "50000")

	if !r.Remove(id) {
		t.Fatal("first Remove should win")
	}
	if r.Remove(id) {
		t.Fatal("second Remove must be a no-op")
	}
}

func TestConcurrentAddAndRemove(t *testing.T) {
	t.Parallel()
	r := NewRegistry(1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		owner := int64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := r.Add(owner, "bitcoin", Above, d("100")); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
				_ = r.ListByOwner(owner)
			}
			if n := r.RemoveByOwnerAndSymbol(owner, "bitcoin"); n != 50 {
				t.Errorf("owner %d removed %d, want 50", owner, n)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("registry should be empty, Len = %d", r.Len())
	}
}

func TestPerOwnerCap(t *testing.T) {
	t.Parallel()
	r := NewRegistry(2)
	mustAdd(t, r, 1, "bitcoin", Above, "1")
	mustAdd(t, r, 1, "ethereum", Above, "1")
	if _, err := r.Add(1, "dogecoin", Above, d("1")); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("over cap: err = %v, want ErrInvalidSpec", err)
	}
	// The cap is per owner, not global.
	mustAdd(t, r, 2, "dogecoin", Above, "1")
}

func mustAdd(t *testing.T, r *Registry, owner int64, symbol string, dir Direction, threshold string) uint64 {
	t.Helper()
	id, err := r.Add(owner, symbol, dir, d(threshold))
	if err != nil {
		t.Fatalf("Add(%d, %s): %v", owner, symbol, err)
	}
	return id
}
