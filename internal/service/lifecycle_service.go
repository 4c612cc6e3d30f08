package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
)

type lifecycleRepository interface {
	FindByID(ctx context.Context, id string) (*models.PreRegistration, error)
	UpdateStatusCAS(ctx context.Context, id string, desde, hacia models.EstadoRegistro, fechaVencimiento *time.Time) (bool, error)
}

// LifecycleService applies admin state transitions to pre-registrations.
// Every transition is compare-and-swap guarded so a concurrent student
// activation or a competing admin cannot be silently overwritten.
type LifecycleService struct {
	repo          lifecycleRepository
	audit         auditWriter
	cache         *CacheService
	logger        *zap.Logger
	now           func() time.Time
	diasExtension int
}

// NewLifecycleService constructs a LifecycleService. diasExtension is the
// default validity extension applied when a reactivation request does not
// carry one.
func NewLifecycleService(repo lifecycleRepository, audit auditWriter, cache *CacheService, logger *zap.Logger, diasExtension int) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if diasExtension <= 0 {
		diasExtension = 30
	}
	return &LifecycleService{
		repo:          repo,
		audit:         audit,
		cache:         cache,
		logger:        logger,
		now:           time.Now,
		diasExtension: diasExtension,
	}
}

// Suspender moves a record to SUSPENDIDO.
func (s *LifecycleService) Suspender(ctx context.Context, id string, meta ActionMeta) (*models.PreRegistration, error) {
	return s.transition(ctx, id, models.EstadoSuspendido, nil, meta)
}

// Cancelar moves a record to its terminal CANCELADO state.
func (s *LifecycleService) Cancelar(ctx context.Context, id string, meta ActionMeta) (*models.PreRegistration, error) {
	return s.transition(ctx, id, models.EstadoCancelado, nil, meta)
}

// Restablecer lifts a suspension. A record that completed registration
// before being suspended goes back to ACTIVO, otherwise to PENDIENTE.
func (s *LifecycleService) Restablecer(ctx context.Context, id string, meta ActionMeta) (*models.PreRegistration, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.EstadoRegistro != models.EstadoSuspendido {
		return nil, appErrors.Clone(appErrors.ErrTransicionInvalida, "solo un registro suspendido puede restablecerse")
	}
	hacia := models.EstadoPendiente
	if rec.FechaCompletado != nil {
		hacia = models.EstadoActivo
	}
	return s.apply(ctx, rec, hacia, nil, meta)
}

// Reactivar extends an expired pending record. Only records whose effective
// status is EXPIRADO qualify; the validity window restarts from now.
func (s *LifecycleService) Reactivar(ctx context.Context, id string, diasExtension int, meta ActionMeta) (*models.PreRegistration, error) {
	if diasExtension <= 0 {
		diasExtension = s.diasExtension
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if rec.EstadoEfectivoEn(now) != models.EfectivoExpirado {
		return nil, appErrors.Clone(appErrors.ErrTransicionInvalida, "solo un registro expirado puede reactivarse")
	}
	vence := now.AddDate(0, 0, diasExtension)
	return s.apply(ctx, rec, models.EstadoPendiente, &vence, meta)
}

func (s *LifecycleService) transition(ctx context.Context, id string, hacia models.EstadoRegistro, fechaVencimiento *time.Time, meta ActionMeta) (*models.PreRegistration, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rec, hacia, fechaVencimiento, meta)
}

func (s *LifecycleService) apply(ctx context.Context, rec *models.PreRegistration, hacia models.EstadoRegistro, fechaVencimiento *time.Time, meta ActionMeta) (*models.PreRegistration, error) {
	desde := rec.EstadoRegistro
	// Reactivation rewrites the expiry date without leaving PENDIENTE, so a
	// same-state swap is allowed when a new expiry comes with it.
	sameStateReset := desde == hacia && fechaVencimiento != nil
	if !sameStateReset && !models.PuedeTransicionar(desde, hacia) {
		return nil, appErrors.WithDetails(appErrors.ErrTransicionInvalida, map[string]interface{}{
			"desde": desde, "hacia": hacia,
		})
	}

	swapped, err := s.repo.UpdateStatusCAS(ctx, rec.ID, desde, hacia, fechaVencimiento)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to update state")
	}
	if !swapped {
		return nil, appErrors.Clone(appErrors.ErrTransicionInvalida, "el registro cambio de estado, vuelva a intentarlo")
	}

	rec.EstadoRegistro = hacia
	if fechaVencimiento != nil {
		rec.FechaVencimiento = *fechaVencimiento
	}

	s.cache.Invalidate(ctx, "preregistros:*")
	s.writeAudit(ctx, rec.ID, desde, hacia, meta)
	s.logger.Info("pre-registration state changed",
		zap.String("id", rec.ID),
		zap.String("desde", string(desde)),
		zap.String("hacia", string(hacia)))
	return rec, nil
}

func (s *LifecycleService) load(ctx context.Context, id string) (*models.PreRegistration, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pre-registration")
	}
	return rec, nil
}

func (s *LifecycleService) writeAudit(ctx context.Context, resourceID string, desde, hacia models.EstadoRegistro, meta ActionMeta) {
	if s.audit == nil {
		return
	}
	var actor *string
	if meta.ActorID != "" {
		actor = &meta.ActorID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actor,
		Action:     models.AuditActionEstadoTransito,
		Resource:   "pre_registrations",
		ResourceID: &resourceID,
		OldValues:  []byte(`{"estado":"` + string(desde) + `"}`),
		NewValues:  []byte(`{"estado":"` + string(hacia) + `"}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}
