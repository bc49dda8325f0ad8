package domain

import (
	"errors"
	"fmt"
	"time"
)

// Errores sentinela compartidos entre módulos.
// Se comparan con errors.Is para decidir la política de manejo (cache
// fallback, escalado a circuit breaker, etc.).
var (
	// ErrNotInitialized indica que un módulo se usó antes de Init.
	ErrNotInitialized = errors.New("module not initialized")
	// ErrRateLimited indica un 429 del endpoint externo que NO pudo
	// servirse desde cache. El caller debe escalar, no continuar sin datos.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoData indica que la fuente respondió pero sin datos útiles.
	ErrNoData = errors.New("no data")
	// ErrNotFound indica que el recurso no existe en la fuente.
	ErrNotFound = errors.New("not found")
)

// ModuleError es un error de módulo con código machine-readable,
// contexto libre y timestamp, para búsqueda en logs.
type ModuleError struct {
	Code    string
	Module  string
	Message string
	At      time.Time
	Err     error
}

// NewModuleError crea un ModuleError con timestamp actual.
func NewModuleError(module, code, message string, err error) *ModuleError {
	return &ModuleError{
		Code:    code,
		Module:  module,
		Message: message,
		At:      time.Now().UTC(),
		Err:     err,
	}
}

func (e *ModuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Module, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Module, e.Code, e.Message)
}

func (e *ModuleError) Unwrap() error { return e.Err }
