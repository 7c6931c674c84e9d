package env

import (
	"testing"
	"time"
)

func TestIntParsesAndRejects(t *testing.T) {
	t.Setenv("QUEUE", "64")
	if n, err := Int("QUEUE", 8); err != nil || n != 64 {
		t.Fatalf("Int = %d, %v", n, err)
	}

	t.Setenv("QUEUE", "zero")
	if n, err := Int("QUEUE", 8); err == nil || n != 8 {
		t.Fatalf("expected parse error with default, got %d, %v", n, err)
	}

	t.Setenv("QUEUE", "-1")
	if _, err := Int("QUEUE", 8); err == nil {
		t.Fatalf("expected non-positive value to be rejected")
	}

	t.Setenv("QUEUE", "  ")
	if n, err := Int("QUEUE", 8); err != nil || n != 8 {
		t.Fatalf("blank value should use default, got %d, %v", n, err)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("TTL", "90s")
	if d, err := Duration("TTL", time.Minute); err != nil || d != 90*time.Second {
		t.Fatalf("Duration = %v, %v", d, err)
	}
	t.Setenv("TTL", "0")
	if d, err := Duration("TTL", time.Minute); err != nil || d != 0 {
		t.Fatalf("zero should be accepted, got %v, %v", d, err)
	}
	t.Setenv("TTL", "-5s")
	if _, err := Duration("TTL", time.Minute); err == nil {
		t.Fatalf("expected negative duration to be rejected")
	}
	t.Setenv("TTL", "soon")
	if _, err := Duration("TTL", time.Minute); err == nil {
		t.Fatalf("expected malformed duration to be rejected")
	}
}

func TestBoolAndString(t *testing.T) {
	t.Setenv("FLAG", "true")
	if b, err := Bool("FLAG", false); err != nil || !b {
		t.Fatalf("Bool = %v, %v", b, err)
	}
	t.Setenv("FLAG", "maybe")
	if _, err := Bool("FLAG", false); err == nil {
		t.Fatalf("expected malformed bool to be rejected")
	}
	if got := String("UNSET_FOR_TEST", "fallback"); got != "fallback" {
		t.Fatalf("String = %q", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("COLUMNS", " Backlog, Doing ,,Done ")
	got := List("COLUMNS", nil)
	want := []string{"Backlog", "Doing", "Done"}
	if len(got) != len(want) {
		t.Fatalf("List = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	t.Setenv("COLUMNS", " , ")
	if got := List("COLUMNS", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected default for blank list, got %v", got)
	}
}
