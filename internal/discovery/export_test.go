package discovery

import "time"

// SetNow fija el reloj del Discovery en tests.
func (d *Discovery) SetNow(now func() time.Time) { d.now = now }
