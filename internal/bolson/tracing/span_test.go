package tracing

import (
	"context"
	"testing"
)

func TestStartChildSpanLinksToParentAndInheritsRangeID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "convert", "1-100")
	ctx, child := StartChildSpan(ctx, "parse")
	child.End()
	root.End()

	if len(root.Children) != 1 || root.Children[0] != child {
		t.Fatalf("expected root to have child span, got %+v", root.Children)
	}
	if child.RangeID != "1-100" {
		t.Errorf("child.RangeID = %q, want inherited %q", child.RangeID, "1-100")
	}
	if SpanFromContext(ctx) != child {
		t.Error("SpanFromContext should return the most recently started span")
	}
}

func TestStartChildSpanWithNoParentIsRoot(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	if s.RangeID != "" {
		t.Errorf("RangeID = %q, want empty for a parentless span", s.RangeID)
	}
}

func TestSetAttrIsSafeForConcurrentUse(t *testing.T) {
	_, s := StartSpan(context.Background(), "root", "")
	done := make(chan struct{})
	go func() {
		s.SetAttr("rows", 10)
		close(done)
	}()
	s.SetAttr("bytes", 20)
	<-done

	if len(s.Attrs) != 2 {
		t.Errorf("Attrs = %v, want 2 entries", s.Attrs)
	}
}
