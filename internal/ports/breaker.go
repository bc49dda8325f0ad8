package ports

// Breaker es el circuit breaker externo que consume el invariant
// checker. La firma coincide con *gobreaker.CircuitBreaker, que lo
// satisface directamente.
type Breaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}
