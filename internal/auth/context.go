package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// operatorContextKey is the context key for the authenticated operator.
	operatorContextKey contextKey = "operator"
)

// Operator identifies a caller that passed admin token authentication.
type Operator struct {
	TokenPrefix string
	RemoteAddr  string
}

// ContextWithOperator adds the operator to the context.
func ContextWithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

// OperatorFromContext retrieves the operator from the context.
// Returns nil if the request was not admin-authenticated.
func OperatorFromContext(ctx context.Context) *Operator {
	op, ok := ctx.Value(operatorContextKey).(*Operator)
	if !ok {
		return nil
	}
	return op
}
