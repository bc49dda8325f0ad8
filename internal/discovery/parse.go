package discovery

import (
	"regexp"
	"strconv"
	"strings"
)

// Patrones de extracción del strike, evaluados en orden fijo: el primero
// que matchee gana. Los últimos son deliberadamente más laxos — no
// reordenar sin revisar las questions reales que cubren.
var strikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)above\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`>\s*\$?([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`(?i)over\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]+)?)`),
}

// ParseReferencePrice extrae el precio de referencia (strike) del texto
// de la question. Quita separadores de miles y devuelve el primer match
// numérico. Devuelve false (no error) si no hay match o el texto está
// vacío o malformado.
func ParseReferencePrice(question string) (float64, bool) {
	if question == "" {
		return 0, false
	}

	for _, re := range strikePatterns {
		m := re.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			continue
		}
		return v, true
	}
	return 0, false
}
