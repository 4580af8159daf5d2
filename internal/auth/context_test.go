package auth

import (
	"context"
	"testing"
)

func TestOperatorContext(t *testing.T) {
	if got := OperatorFromContext(context.Background()); got != nil {
		t.Fatalf("expected nil operator, got %+v", got)
	}

	op := &Operator{TokenPrefix: "abcdefgh...", RemoteAddr: "203.0.113.7"}
	ctx := ContextWithOperator(context.Background(), op)

	got := OperatorFromContext(ctx)
	if got != op {
		t.Fatalf("expected %+v, got %+v", op, got)
	}
}
