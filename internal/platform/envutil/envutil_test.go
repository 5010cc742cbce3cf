package envutil

import (
	"testing"
	"time"
)

func TestParsersFallBackOnGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_INT", "nope")
	t.Setenv("ENVUTIL_BOOL", "maybe")
	t.Setenv("ENVUTIL_DUR", "soon")
	if got := Int("ENVUTIL_INT", 7); got != 7 {
		t.Fatalf("Int = %d", got)
	}
	if got := Bool("ENVUTIL_BOOL", true); !got {
		t.Fatalf("Bool = %v", got)
	}
	if got := Duration("ENVUTIL_DUR", time.Minute); got != time.Minute {
		t.Fatalf("Duration = %s", got)
	}
}

func TestParsersReadValues(t *testing.T) {
	t.Setenv("ENVUTIL_DUR", "45")
	t.Setenv("ENVUTIL_DUR2", "1m30s")
	t.Setenv("ENVUTIL_LIST", " a, ,b ")
	t.Setenv("ENVUTIL_BOOL", "no")
	if got := Duration("ENVUTIL_DUR", 0); got != 45*time.Second {
		t.Fatalf("bare seconds = %s", got)
	}
	if got := Duration("ENVUTIL_DUR2", 0); got != 90*time.Second {
		t.Fatalf("go duration = %s", got)
	}
	if got := List("ENVUTIL_LIST", nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List = %v", got)
	}
	if got := Bool("ENVUTIL_BOOL", true); got {
		t.Fatalf("Bool = %v", got)
	}
	if got := String("ENVUTIL_MISSING", "def"); got != "def" {
		t.Fatalf("String = %q", got)
	}
}
