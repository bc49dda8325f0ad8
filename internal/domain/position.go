package domain

import "time"

// Position es una posición trackeada localmente (resultado de fills simulados).
type Position struct {
	TokenID  string
	Symbol   string
	Size     float64
	AvgPrice float64
	OpenedAt time.Time
}

// VenuePosition es una posición reportada por el endpoint de cuenta del venue.
type VenuePosition struct {
	TokenID string
	Size    float64
}

// VerificationResult es el diagnóstico puntual de una reconciliación de
// posiciones. Nunca se persiste como estado autoritativo.
type VerificationResult struct {
	Verified  bool
	Missing   []VenuePosition // en el venue con size > 0 pero no local → falla
	Orphans   []Position      // local pero ausente en el venue → informativo
	FromCache bool
	CheckedAt time.Time
}
