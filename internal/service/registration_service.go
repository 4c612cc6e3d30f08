package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
)

type registrationRepository interface {
	UpdateProfilePendiente(ctx context.Context, id, email, telefono, passwordHash string) error
	FinalizeActivation(ctx context.Context, rec *models.PreRegistration, profile models.ActivationProfile) (bool, error)
}

// StartRegistrationRequest is the payload a student submits to begin
// completing their pre-registration.
type StartRegistrationRequest struct {
	CodigoEstudiante string `json:"codigo_estudiante" validate:"required"`
	DNI              string `json:"dni" validate:"required,len=8,numeric"`
	Email            string `json:"email" validate:"required,email"`
	Telefono         string `json:"telefono" validate:"required,min=6,max=15"`
	Password         string `json:"password" validate:"required,min=8"`
}

// ConfirmRegistrationRequest carries the emailed verification code.
type ConfirmRegistrationRequest struct {
	DNI    string `json:"dni" validate:"required,len=8,numeric"`
	Codigo string `json:"codigo" validate:"required,len=6,numeric"`
}

// StartRegistrationResponse tells the student where the code went.
type StartRegistrationResponse struct {
	EmailHint string `json:"email_hint"`
}

// RegistrationService orchestrates the two-phase completion flow:
// validation, verification and atomic activation.
type RegistrationService struct {
	validation *ValidationService
	codes      *VerificationCodeService
	repo       registrationRepository
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(validation *ValidationService, codes *VerificationCodeService, repo registrationRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		validation: validation,
		codes:      codes,
		repo:       repo,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Start re-validates the code/DNI pair, stashes the supplied profile with
// the password already hashed, and emails a verification code. Plaintext
// passwords are never persisted.
func (s *RegistrationService) Start(ctx context.Context, req StartRegistrationRequest) (*StartRegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	result, err := s.validation.Validate(ctx, req.CodigoEstudiante, req.DNI)
	if err != nil {
		return nil, err
	}
	rec := result.Record

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.repo.UpdateProfilePendiente(ctx, rec.ID, email, strings.TrimSpace(req.Telefono), string(hash)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to store pending profile")
	}

	if err := s.codes.Issue(ctx, rec.ID); err != nil {
		return nil, err
	}

	s.logger.Info("registration started",
		zap.String("record_id", rec.ID),
		zap.String("dni", rec.DNI),
	)
	return &StartRegistrationResponse{EmailHint: maskEmail(email)}, nil
}

// ResendCode re-issues the verification code for the record behind a DNI.
// Throttling lives in the code service.
func (s *RegistrationService) ResendCode(ctx context.Context, dni string) error {
	dni = strings.TrimSpace(dni)
	rec, err := s.validation.findByDNI(ctx, dni)
	if err != nil {
		return err
	}
	if rec.EstadoRegistro != models.EstadoPendiente {
		return appErrors.Clone(appErrors.ErrRegistroInhabilitado, "")
	}
	return s.codes.Resend(ctx, rec.ID)
}

// Confirm verifies the emailed code and activates the record atomically:
// the student account and the ACTIVO flip are committed in one transaction
// guarded by a compare-and-swap on PENDIENTE. A second concurrent confirm
// loses either at code consumption or at the swap; it can never produce a
// duplicate account. A confirm after a successful activation always errors.
func (s *RegistrationService) Confirm(ctx context.Context, req ConfirmRegistrationRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation payload")
	}

	rec, err := s.validation.findByDNI(ctx, req.DNI)
	if err != nil {
		return err
	}

	if err := s.codes.Verify(ctx, rec.ID, req.Codigo); err != nil {
		return err
	}

	if rec.Email == nil || rec.PasswordHashPendiente == nil {
		return appErrors.Clone(appErrors.ErrActivacionFallida, "no hay un registro pendiente de confirmar")
	}
	telefono := ""
	if rec.Telefono != nil {
		telefono = *rec.Telefono
	}

	profile := models.ActivationProfile{
		Email:        *rec.Email,
		Telefono:     telefono,
		PasswordHash: *rec.PasswordHashPendiente,
		Completado:   s.now().UTC(),
	}

	activated, err := s.repo.FinalizeActivation(ctx, rec, profile)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrActivacionFallida.Code, appErrors.ErrActivacionFallida.Status, appErrors.ErrActivacionFallida.Message)
	}
	if !activated {
		return appErrors.Clone(appErrors.ErrTransicionInvalida, "el registro ya no esta pendiente")
	}

	s.metrics.RecordRegistrationCompleted()
	s.logger.Info("registration completed",
		zap.String("record_id", rec.ID),
		zap.String("dni", rec.DNI),
	)
	return nil
}
