package strategy

import "time"

// SetNow fija el reloj del motor en tests.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }
