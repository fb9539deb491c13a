package models

// Outcome is the result of annotating one row. A degraded outcome still carries a usable
// default value; Reason explains what went wrong so the runner can count and log it.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// Ok wraps a successfully computed value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degrade wraps a fallback value produced after a failure.
func Degrade[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Value: v, Degraded: true, Reason: reason}
}
