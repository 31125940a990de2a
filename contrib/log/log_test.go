package log

import (
	"context"
	"testing"
)

func TestHelper_EnabledRespectsLevel(t *testing.T) {
	l := NewStderr(LevelWarn)
	h := NewHelper(l)

	if h.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn level")
	}
	if !h.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestWith_MergesValuers(t *testing.T) {
	base := NewStderr(LevelDebug)
	child := With(base, map[string]Valuer{
		"requestId": func(ctx context.Context) interface{} { return nil },
	})
	if child == base {
		t.Fatal("With must return a new Logger")
	}
}
