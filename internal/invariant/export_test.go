package invariant

import "time"

// SetNow fija el reloj del checker en tests.
func (c *Checker) SetNow(now func() time.Time) { c.now = now }
