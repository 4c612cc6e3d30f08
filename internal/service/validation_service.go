package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/studentcode"
)

type validationRepository interface {
	FindByDNI(ctx context.Context, dni string) (*models.PreRegistration, error)
}

// ValidationResult is the outcome of a successful code/DNI validation.
// Contact hints are masked so the endpoint can be exposed pre-login.
type ValidationResult struct {
	Record         *models.PreRegistration `json:"-"`
	Nombre         string                  `json:"nombre"`
	Apellido       string                  `json:"apellido"`
	EstadoEfectivo models.EstadoEfectivo   `json:"estado_efectivo"`
	EmailHint      string                  `json:"email_hint,omitempty"`
	TelefonoHint   string                  `json:"telefono_hint,omitempty"`
}

// ValidationService verifies a (codigo, dni) pair against the store.
// It never mutates state.
type ValidationService struct {
	repo   validationRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewValidationService constructs a ValidationService.
func NewValidationService(repo validationRepository, logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{repo: repo, logger: logger, now: time.Now}
}

// Validate checks the code against the DNI and the stored record.
//
// The check character is recomputed from the DNI, so a forged or corrupted
// code is rejected before any state is consulted. The wall clock is read
// once and reused for every expiry comparison in the call.
func (s *ValidationService) Validate(ctx context.Context, codigo, dni string) (*ValidationResult, error) {
	now := s.now().UTC()

	dni = strings.TrimSpace(dni)
	if !studentcode.ValidDNI(dni) {
		return nil, appErrors.Clone(appErrors.ErrDNIInvalido, "")
	}

	normalized := studentcode.Normalize(codigo)
	if len(normalized) != studentcode.Length || !strings.HasPrefix(normalized, studentcode.Prefix) {
		return nil, appErrors.Clone(appErrors.ErrCodigoInvalido, "")
	}

	embedded, ok := studentcode.DNI(normalized)
	if !ok || embedded != dni {
		return nil, appErrors.Clone(appErrors.ErrCodigoDNINoCoincide, "")
	}

	check, err := studentcode.CheckChar(dni)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDNIInvalido.Code, appErrors.ErrDNIInvalido.Status, appErrors.ErrDNIInvalido.Message)
	}
	if normalized[studentcode.Length-1] != check {
		return nil, appErrors.Clone(appErrors.ErrCodigoManipulado, "")
	}

	rec, err := s.findByDNI(ctx, dni)
	if err != nil {
		return nil, err
	}

	efectivo := rec.EstadoEfectivoEn(now)
	switch efectivo {
	case models.EfectivoPendiente, models.EfectivoPorVencer:
		// proceed
	case models.EfectivoExpirado:
		return nil, appErrors.WithDetails(appErrors.ErrExpirado, map[string]interface{}{
			"fecha_vencimiento": rec.FechaVencimiento,
		})
	default:
		return nil, appErrors.Clone(appErrors.ErrRegistroInhabilitado, "")
	}

	result := &ValidationResult{
		Record:         rec,
		Nombre:         rec.Nombre,
		Apellido:       rec.Apellido,
		EstadoEfectivo: efectivo,
	}
	if rec.Email != nil {
		result.EmailHint = maskEmail(*rec.Email)
	}
	if rec.Telefono != nil {
		result.TelefonoHint = maskPhone(*rec.Telefono)
	}
	return result, nil
}

// findByDNI loads a record by DNI with the service's error mapping.
func (s *ValidationService) findByDNI(ctx context.Context, dni string) (*models.PreRegistration, error) {
	rec, err := s.repo.FindByDNI(ctx, dni)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no existe un preregistro para ese dni")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pre-registration")
	}
	return rec, nil
}

// maskEmail keeps the first character and the domain: "j***@gmail.com".
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}

// maskPhone keeps the last three digits only.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return phone
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}
