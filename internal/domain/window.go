package domain

import "time"

// WindowDuration es la duración fija de cada ventana up/down: 15 minutos.
const WindowDuration = 15 * time.Minute

// Window representa una ventana de mercado binario de corta duración:
// el mercado resuelve ~15 minutos después de abrir según si el activo
// cierra por encima o por debajo del strike.
type Window struct {
	Symbol      string
	Slug        string
	ConditionID string
	Question    string
	OpenEpoch   int64 // epoch segundos
	CloseEpoch  int64 // OpenEpoch + 900
	Strike      float64
	HasStrike   bool // false si la pregunta no contiene precio parseable
	UpTokenID   string
	DownTokenID string
	ImpliedMid  float64 // mid actual del token UP según el CLOB
	Liquidity   float64
	Volume24h   float64
	Active      bool
	Closed      bool
	FetchedAt   time.Time
}

// OpenTime devuelve el instante de apertura de la ventana.
func (w Window) OpenTime() time.Time { return time.Unix(w.OpenEpoch, 0).UTC() }

// CloseTime devuelve el instante de cierre de la ventana.
func (w Window) CloseTime() time.Time { return time.Unix(w.CloseEpoch, 0).UTC() }

// Expired devuelve true si la ventana ya pasó su cierre en el instante dado.
func (w Window) Expired(now time.Time) bool {
	return now.Unix() >= w.CloseEpoch
}

// Tradable devuelve true si la ventana acepta órdenes en el instante dado.
func (w Window) Tradable(now time.Time) bool {
	return w.Active && !w.Closed && !w.Expired(now)
}

// SecondsSinceOpen devuelve los segundos transcurridos desde la apertura.
// Negativo si la ventana aún no abrió.
func (w Window) SecondsSinceOpen(now time.Time) float64 {
	return now.Sub(w.OpenTime()).Seconds()
}

// TimeToClose devuelve el tiempo restante hasta el cierre (0 si ya cerró).
func (w Window) TimeToClose(now time.Time) time.Duration {
	d := w.CloseTime().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// TokenIDs devuelve los token ids no vacíos de la ventana (UP y DOWN).
func (w Window) TokenIDs() []string {
	ids := make([]string, 0, 2)
	if w.UpTokenID != "" {
		ids = append(ids, w.UpTokenID)
	}
	if w.DownTokenID != "" {
		ids = append(ids, w.DownTokenID)
	}
	return ids
}

// WindowOpenEpoch trunca un instante al inicio de su ventana de 15 minutos.
func WindowOpenEpoch(now time.Time) int64 {
	secs := int64(WindowDuration / time.Second)
	return now.Unix() / secs * secs
}
