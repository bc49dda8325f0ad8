package verify

import "time"

// SetNow fija el reloj del verificador en tests.
func (v *Verifier) SetNow(now func() time.Time) { v.now = now }
