package scope

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context reported a scope")
	}

	ctx := WithScope(context.Background(), New("t-1", "u-9"))
	sc, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("scope missing after WithScope")
	}
	if tid, ok := sc.Tenant(); !ok || tid != "t-1" {
		t.Fatalf("tenant = %q, %v", tid, ok)
	}
	if uid, ok := sc.User(); !ok || uid != "u-9" {
		t.Fatalf("user = %q, %v", uid, ok)
	}
}

func TestEmptyScope(t *testing.T) {
	var sc Scope
	if _, ok := sc.Tenant(); ok {
		t.Fatalf("zero scope has a tenant")
	}
	if _, ok := sc.User(); ok {
		t.Fatalf("zero scope has a user")
	}
}
