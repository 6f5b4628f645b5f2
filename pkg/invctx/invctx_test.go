package invctx

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	t.Run("returns info when set in context", func(t *testing.T) {
		// Arrange
		ctx := WithInfo(context.Background(), &Info{Target: "demo.Echo", TraceID: "4bf92f3577b34da6a3ce929d0e0e4736"})

		// Act
		info := FromContext(ctx)

		// Assert
		if info == nil {
			t.Fatal("expected info, got nil")
		}
		if info.Target != "demo.Echo" {
			t.Errorf("expected target %q, got %q", "demo.Echo", info.Target)
		}
		if info.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("unexpected trace ID %q", info.TraceID)
		}
	})

	t.Run("returns nil when not set in context", func(t *testing.T) {
		if info := FromContext(context.Background()); info != nil {
			t.Errorf("expected nil, got %+v", info)
		}
	})
}

func TestTargetFromContext(t *testing.T) {
	ctx := WithInfo(context.Background(), &Info{Target: "demo.Adder"})
	if got := TargetFromContext(ctx); got != "demo.Adder" {
		t.Errorf("expected %q, got %q", "demo.Adder", got)
	}
	if got := TargetFromContext(context.Background()); got != "" {
		t.Errorf("expected empty target, got %q", got)
	}
}
