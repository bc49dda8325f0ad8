package domain

import "time"

// Assertion es una invariante de runtime con nombre fijo. Passed es nil
// hasta la primera evaluación (estado pendiente).
type Assertion struct {
	Name    string
	Passed  *bool
	Message string
	LastRun time.Time
}

// Pending devuelve true si la assertion aún no se evaluó.
func (a Assertion) Pending() bool { return a.Passed == nil }

// Failed devuelve true si la assertion se evaluó y falló.
func (a Assertion) Failed() bool { return a.Passed != nil && !*a.Passed }
