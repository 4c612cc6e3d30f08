package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/mailer"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/studentcode"
)

type verificationRepository interface {
	FindByID(ctx context.Context, id string) (*models.PreRegistration, error)
	UpdateVerification(ctx context.Context, id string, upd models.VerificationUpdate) error
	UpdateVerificationCAS(ctx context.Context, id string, upd models.VerificationUpdate, cutoff time.Time) (bool, error)
	ConsumeVerification(ctx context.Context, id, codigo string) (bool, error)
}

// VerificationConfig tunes code lifetime and resend throttling.
type VerificationConfig struct {
	CodigoTTL        time.Duration
	ReenvioCooldown  time.Duration
	ReenvioMaxDiario int
}

// VerificationCodeService issues and consumes the short-lived one-time
// codes emailed to students during registration completion.
type VerificationCodeService struct {
	repo    verificationRepository
	mailer  mailer.Sender
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     VerificationConfig
}

// NewVerificationCodeService constructs a VerificationCodeService.
func NewVerificationCodeService(repo verificationRepository, sender mailer.Sender, metrics *MetricsService, logger *zap.Logger, cfg VerificationConfig) *VerificationCodeService {
	if cfg.CodigoTTL <= 0 {
		cfg.CodigoTTL = 15 * time.Minute
	}
	if cfg.ReenvioCooldown <= 0 {
		cfg.ReenvioCooldown = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationCodeService{repo: repo, mailer: sender, metrics: metrics, logger: logger, now: time.Now, cfg: cfg}
}

// Issue generates a fresh 6-digit code for the record, overwriting any
// previous one, and emails it to the student. At most one code is active
// per record at any time.
func (s *VerificationCodeService) Issue(ctx context.Context, recordID string) error {
	rec, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	return s.issue(ctx, rec, now, rec.IntentosReenvio, nil)
}

// Verify checks the supplied code and consumes it on success. The consume
// is a guarded update, so two concurrent confirms cannot both win: the
// loser observes a mismatch because the code is already gone.
func (s *VerificationCodeService) Verify(ctx context.Context, recordID, codigo string) error {
	rec, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	if rec.CodigoVerificacion == nil || rec.CodigoVerificacionExpira == nil {
		return appErrors.Clone(appErrors.ErrCodigoIncorrecto, "no hay un codigo de verificacion activo")
	}
	if now.After(*rec.CodigoVerificacionExpira) {
		return appErrors.Clone(appErrors.ErrCodigoExpirado, "")
	}
	if *rec.CodigoVerificacion != codigo {
		return appErrors.Clone(appErrors.ErrCodigoIncorrecto, "")
	}

	consumed, err := s.repo.ConsumeVerification(ctx, recordID, codigo)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to consume verification code")
	}
	if !consumed {
		return appErrors.Clone(appErrors.ErrCodigoIncorrecto, "")
	}
	return nil
}

// Resend re-issues a code subject to the cooldown and the daily cap. The
// read-side checks below only shape the error details: the cooldown
// predicate travels with the write itself, so two near-simultaneous resends
// reading the same snapshot cannot both slip through, and the email only
// goes out for the one that won.
func (s *VerificationCodeService) Resend(ctx context.Context, recordID string) error {
	rec, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	if rec.UltimoReenvio != nil {
		elapsed := now.Sub(*rec.UltimoReenvio)
		if elapsed < s.cfg.ReenvioCooldown {
			retryAfter := int((s.cfg.ReenvioCooldown - elapsed).Seconds()) + 1
			return appErrors.WithDetails(appErrors.ErrRateLimited, map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
		}
	}

	intentos := rec.IntentosReenvio
	if rec.UltimoReenvio != nil && !sameDay(*rec.UltimoReenvio, now) {
		intentos = 0
	}
	if s.cfg.ReenvioMaxDiario > 0 && intentos >= s.cfg.ReenvioMaxDiario {
		return appErrors.Clone(appErrors.ErrRateLimited, "se alcanzo el maximo de reenvios por dia")
	}

	cutoff := now.Add(-s.cfg.ReenvioCooldown)
	return s.issue(ctx, rec, now, intentos+1, &cutoff)
}

// issue stores a fresh code and emails it. A non-nil cutoff makes the store
// conditional on ultimo_reenvio being at or before it.
func (s *VerificationCodeService) issue(ctx context.Context, rec *models.PreRegistration, now time.Time, intentos int, cutoff *time.Time) error {
	if rec.Email == nil || *rec.Email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "el preregistro no tiene un email para verificar")
	}

	codigo, err := generateNumericCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}
	expira := now.Add(s.cfg.CodigoTTL)

	upd := models.VerificationUpdate{
		Codigo:          &codigo,
		Expira:          &expira,
		UltimoReenvio:   &now,
		IntentosReenvio: intentos,
	}
	if cutoff != nil {
		swapped, err := s.repo.UpdateVerificationCAS(ctx, rec.ID, upd, *cutoff)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to store verification code")
		}
		if !swapped {
			return appErrors.Clone(appErrors.ErrRateLimited, "un reenvio simultaneo ya emitio un codigo")
		}
	} else if err := s.repo.UpdateVerification(ctx, rec.ID, upd); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to store verification code")
	}

	msg := mailer.Message{
		To:      *rec.Email,
		Subject: "Codigo de verificacion - IEP Peruano Chino",
		Body: fmt.Sprintf("Hola %s,\n\nTu codigo de verificacion es: %s\n\nCodigo de estudiante: %s\nEl codigo vence en %d minutos.\n",
			rec.Nombre, codigo, studentcode.Format(rec.CodigoEstudiante), int(s.cfg.CodigoTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("verification email failed", zap.String("record_id", rec.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrEnvioEmail.Code, appErrors.ErrEnvioEmail.Status, appErrors.ErrEnvioEmail.Message)
	}
	s.metrics.RecordCodeSent()
	return nil
}

func (s *VerificationCodeService) loadRecord(ctx context.Context, recordID string) (*models.PreRegistration, error) {
	rec, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pre-registration")
	}
	return rec, nil
}

// generateNumericCode returns a cryptographically random 6-digit code.
func generateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
