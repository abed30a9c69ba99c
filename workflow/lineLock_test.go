package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestLocalLineLocker(t *testing.T) {
	l := NewLineLocker(nil)
	ctx := context.Background()

	release, err := l.Obtain(ctx, "correction:sales:1:a")
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, "correction:sales:1:a"); !errors.Is(err, ErrCorrectionInProgress) {
		t.Fatalf("second Obtain err = %v", err)
	}
	other, err := l.Obtain(ctx, "correction:sales:1:b")
	if err != nil {
		t.Fatalf("other line: %v", err)
	}
	other()

	release()
	release()
	again, err := l.Obtain(ctx, "correction:sales:1:a")
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	again()
}

func TestObtainAllReleasesOnFailure(t *testing.T) {
	l := NewLineLocker(nil)
	ctx := context.Background()

	held, _ := l.Obtain(ctx, "b")
	if _, err := obtainAll(ctx, l, []string{"c", "b", "a"}); !errors.Is(err, ErrCorrectionInProgress) {
		t.Fatalf("err = %v", err)
	}
	held()

	// "a" was taken before "b" failed and must have been released
	release, err := obtainAll(ctx, l, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("obtainAll: %v", err)
	}
	release()
}
