package models

import "time"

// EstadoRegistro is the persisted lifecycle state of a pre-registration.
type EstadoRegistro string

// Persisted states. CANCELADO is terminal.
const (
	EstadoPendiente  EstadoRegistro = "PENDIENTE"
	EstadoActivo     EstadoRegistro = "ACTIVO"
	EstadoSuspendido EstadoRegistro = "SUSPENDIDO"
	EstadoCancelado  EstadoRegistro = "CANCELADO"
)

// EstadoEfectivo is the display state derived from the persisted state and
// the current time. EXPIRADO and POR_VENCER are never persisted.
type EstadoEfectivo string

const (
	EfectivoPendiente  EstadoEfectivo = "PENDIENTE"
	EfectivoActivo     EstadoEfectivo = "ACTIVO"
	EfectivoSuspendido EstadoEfectivo = "SUSPENDIDO"
	EfectivoCancelado  EstadoEfectivo = "CANCELADO"
	EfectivoExpirado   EstadoEfectivo = "EXPIRADO"
	EfectivoPorVencer  EstadoEfectivo = "POR_VENCER"
)

// VentanaPorVencer is the window before expiry in which a pending record is
// surfaced as POR_VENCER.
const VentanaPorVencer = 7 * 24 * time.Hour

// transiciones is the closed table of allowed state changes. PENDIENTE to
// ACTIVO is the student activation edge; the rest are admin actions.
// Expiry is not listed: it is derived, never written.
var transiciones = map[EstadoRegistro]map[EstadoRegistro]bool{
	EstadoPendiente:  {EstadoSuspendido: true, EstadoCancelado: true, EstadoActivo: true},
	EstadoActivo:     {EstadoSuspendido: true, EstadoCancelado: true},
	EstadoSuspendido: {EstadoPendiente: true, EstadoActivo: true, EstadoCancelado: true},
	EstadoCancelado:  {},
}

// PuedeTransicionar reports whether an explicit transition is allowed.
func PuedeTransicionar(desde, hacia EstadoRegistro) bool {
	return transiciones[desde][hacia]
}

// DerivarEstadoEfectivo layers the time-derived states over a persisted one.
// Only PENDIENTE records expire or approach expiry; every other state maps
// to itself.
func DerivarEstadoEfectivo(estado EstadoRegistro, fechaVencimiento time.Time, now time.Time) EstadoEfectivo {
	if estado != EstadoPendiente {
		return EstadoEfectivo(estado)
	}
	// At the exact expiry instant the record is neither expired nor in the
	// warning window: por-vencer requires strictly positive time remaining.
	restante := fechaVencimiento.Sub(now)
	switch {
	case restante < 0:
		return EfectivoExpirado
	case restante > 0 && restante <= VentanaPorVencer:
		return EfectivoPorVencer
	default:
		return EfectivoPendiente
	}
}

// PreRegistration is a student record created by an administrator and later
// completed by the student. DNI and CodigoEstudiante are unique; the code is
// re-derivable from the DNI at any time for tamper detection.
type PreRegistration struct {
	ID               string         `db:"id" json:"id"`
	Nombre           string         `db:"nombre" json:"nombre"`
	Apellido         string         `db:"apellido" json:"apellido"`
	DNI              string         `db:"dni" json:"dni"`
	CodigoEstudiante string         `db:"codigo_estudiante" json:"codigo_estudiante"`
	EstadoRegistro   EstadoRegistro `db:"estado_registro" json:"estado_registro"`
	FechaCreacion    time.Time      `db:"fecha_creacion" json:"fecha_creacion"`
	FechaVencimiento time.Time      `db:"fecha_vencimiento" json:"fecha_vencimiento"`
	FechaCompletado  *time.Time     `db:"fecha_completado" json:"fecha_completado,omitempty"`

	Email    *string `db:"email" json:"email,omitempty"`
	Telefono *string `db:"telefono" json:"telefono,omitempty"`

	// PasswordHashPendiente holds the bcrypt hash supplied at the start of
	// completion until activation persists it to the user account. The raw
	// password is never stored.
	PasswordHashPendiente *string `db:"password_hash_pendiente" json:"-"`

	CodigoVerificacion       *string    `db:"codigo_verificacion" json:"-"`
	CodigoVerificacionExpira *time.Time `db:"codigo_verificacion_expira" json:"-"`
	UltimoReenvio            *time.Time `db:"ultimo_reenvio" json:"-"`
	IntentosReenvio          int        `db:"intentos_reenvio" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EstadoEfectivoEn derives the display state of the record at a given time.
func (p *PreRegistration) EstadoEfectivoEn(now time.Time) EstadoEfectivo {
	return DerivarEstadoEfectivo(p.EstadoRegistro, p.FechaVencimiento, now)
}

// PreRegistrationDetail is the admin-facing projection including the
// derived status and the dashed display form of the code.
type PreRegistrationDetail struct {
	PreRegistration
	EstadoEfectivo EstadoEfectivo `json:"estado_efectivo"`
	CodigoDisplay  string         `json:"codigo_display"`
}

// VerificationUpdate carries the verification bookkeeping written by the
// verification code service. Nil pointers clear the stored fields.
type VerificationUpdate struct {
	Codigo          *string
	Expira          *time.Time
	UltimoReenvio   *time.Time
	IntentosReenvio int
}

// ActivationProfile is the data persisted atomically when a student
// completes registration.
type ActivationProfile struct {
	Email        string
	Telefono     string
	PasswordHash string
	Completado   time.Time
}

// PreRegistrationFilter encapsulates admin listing parameters.
type PreRegistrationFilter struct {
	Search    string
	Estado    EstadoRegistro
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EstadoCount aggregates records per persisted state.
type EstadoCount struct {
	Estado EstadoRegistro `db:"estado_registro" json:"estado"`
	Total  int            `db:"total" json:"total"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
