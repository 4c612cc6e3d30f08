package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors covering the pre-registration flows.
var (
	ErrValidation           = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrDNIInvalido          = New("DNI_INVALIDO", http.StatusBadRequest, "dni must be exactly 8 digits")
	ErrCodigoInvalido       = New("CODIGO_INVALIDO", http.StatusBadRequest, "codigo de estudiante malformado")
	ErrCodigoDNINoCoincide  = New("CODIGO_DNI_NO_COINCIDE", http.StatusUnprocessableEntity, "el codigo no corresponde al dni")
	ErrCodigoManipulado     = New("CODIGO_MANIPULADO", http.StatusUnprocessableEntity, "digito verificador invalido")
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrDuplicado            = New("DNI_DUPLICADO", http.StatusConflict, "dni already registered")
	ErrExpirado             = New("PREREGISTRO_EXPIRADO", http.StatusGone, "pre-registration expired")
	ErrRegistroInhabilitado = New("REGISTRO_INHABILITADO", http.StatusForbidden, "pre-registration suspended or cancelled")
	ErrCodigoExpirado       = New("CODIGO_VERIFICACION_EXPIRADO", http.StatusGone, "verification code expired")
	ErrCodigoIncorrecto     = New("CODIGO_VERIFICACION_INCORRECTO", http.StatusUnprocessableEntity, "verification code does not match")
	ErrRateLimited          = New("REENVIO_LIMITADO", http.StatusTooManyRequests, "resend requested too soon")
	ErrTransicionInvalida   = New("TRANSICION_INVALIDA", http.StatusConflict, "illegal status transition")
	ErrActivacionFallida    = New("ACTIVACION_FALLIDA", http.StatusInternalServerError, "activation could not be completed")
	ErrPersistencia         = New("PERSISTENCE_ERROR", http.StatusInternalServerError, "persistence failure")
	ErrEnvioEmail           = New("EMAIL_DELIVERY_ERROR", http.StatusBadGateway, "email delivery failure")
	ErrInvalidCredentials   = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrUnauthorized         = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden            = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss is an internal sentinel, never returned to clients.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// WithDetails returns a copy of the error carrying structured details.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
