package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/repository"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/export"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/storage"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/studentcode"
)

type preRegistrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.PreRegistration, error)
	Create(ctx context.Context, rec *models.PreRegistration) error
	List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistration, int, error)
	ListAll(ctx context.Context, estado models.EstadoRegistro) ([]models.PreRegistration, error)
	CountByEstado(ctx context.Context) ([]models.EstadoCount, error)
	VencimientosPendientes(ctx context.Context) ([]time.Time, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreatePreRegistrationRequest holds the payload for single creation.
type CreatePreRegistrationRequest struct {
	Nombre   string `json:"nombre" validate:"required"`
	Apellido string `json:"apellido" validate:"required"`
	DNI      string `json:"dni" validate:"required,len=8,numeric"`
}

// PreRegistrationStats summarises the store for the admin dashboard.
// Expirados and PorVencer are derived, never persisted.
type PreRegistrationStats struct {
	PorEstado []models.EstadoCount `json:"por_estado"`
	Expirados int                  `json:"expirados"`
	PorVencer int                  `json:"por_vencer"`
}

// ActionMeta identifies the admin performing an action for the audit trail.
type ActionMeta struct {
	ActorID   string
	IP        string
	UserAgent string
}

// PreRegistrationService covers the admin surface: creating records,
// listing them with derived statuses, stats and exports.
type PreRegistrationService struct {
	repo         preRegistrationRepository
	audit        auditWriter
	cache        *CacheService
	archive      *storage.ExportArchive
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
	diasVigencia int
}

// NewPreRegistrationService constructs a PreRegistrationService. A nil
// archive disables on-disk export copies.
func NewPreRegistrationService(repo preRegistrationRepository, audit auditWriter, cache *CacheService, archive *storage.ExportArchive, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, diasVigencia int) *PreRegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if diasVigencia <= 0 {
		diasVigencia = 30
	}
	return &PreRegistrationService{
		repo:         repo,
		audit:        audit,
		cache:        cache,
		archive:      archive,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
		diasVigencia: diasVigencia,
	}
}

// Create registers a single student, deriving the enrollment code from the
// DNI. The record starts PENDIENTE with a configurable validity window.
func (s *PreRegistrationService) Create(ctx context.Context, req CreatePreRegistrationRequest, meta ActionMeta) (*models.PreRegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pre-registration payload")
	}

	now := s.now().UTC()
	rec, err := buildPreRegistration(req.Nombre, req.Apellido, req.DNI, now, s.diasVigencia)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDNIInvalido.Code, appErrors.ErrDNIInvalido.Status, appErrors.ErrDNIInvalido.Message)
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicado) {
			return nil, appErrors.Clone(appErrors.ErrDuplicado, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to create pre-registration")
	}

	s.metrics.RecordPreRegistrationCreated()
	s.invalidateListings(ctx)
	s.writeAudit(ctx, models.AuditActionPreRegCreate, rec.ID, nil, map[string]interface{}{
		"dni": rec.DNI, "codigo_estudiante": rec.CodigoEstudiante,
	}, meta)

	return s.detail(rec, now), nil
}

// Get returns a record with its derived status.
func (s *PreRegistrationService) Get(ctx context.Context, id string) (*models.PreRegistrationDetail, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pre-registration")
	}
	return s.detail(rec, s.now().UTC()), nil
}

// List returns records with derived statuses and pagination metadata.
// Results are cached per filter when caching is enabled.
func (s *PreRegistrationService) List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistrationDetail, *models.Pagination, error) {
	type cached struct {
		Items      []models.PreRegistrationDetail `json:"items"`
		Pagination *models.Pagination             `json:"pagination"`
	}
	key := listCacheKey(filter)
	var hit cached
	if ok, _ := s.cache.Get(ctx, key, &hit); ok {
		return hit.Items, hit.Pagination, nil
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to list pre-registrations")
	}

	now := s.now().UTC()
	items := make([]models.PreRegistrationDetail, 0, len(records))
	for i := range records {
		items = append(items, *s.detail(&records[i], now))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}

	_ = s.cache.Set(ctx, key, cached{Items: items, Pagination: pagination}, 0)
	return items, pagination, nil
}

// Stats aggregates persisted counts and the time-derived breakdown of the
// pending population.
func (s *PreRegistrationService) Stats(ctx context.Context) (*PreRegistrationStats, error) {
	const key = "preregistros:stats"
	var hit PreRegistrationStats
	if ok, _ := s.cache.Get(ctx, key, &hit); ok {
		return &hit, nil
	}

	counts, err := s.repo.CountByEstado(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to aggregate states")
	}
	vencimientos, err := s.repo.VencimientosPendientes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pending expiries")
	}

	now := s.now().UTC()
	stats := &PreRegistrationStats{PorEstado: counts}
	for _, fecha := range vencimientos {
		switch models.DerivarEstadoEfectivo(models.EstadoPendiente, fecha, now) {
		case models.EfectivoExpirado:
			stats.Expirados++
		case models.EfectivoPorVencer:
			stats.PorVencer++
		}
	}

	_ = s.cache.Set(ctx, key, stats, 0)
	return stats, nil
}

// Export renders the full listing as CSV or PDF.
func (s *PreRegistrationService) Export(ctx context.Context, formato string, estado models.EstadoRegistro) ([]byte, string, error) {
	records, err := s.repo.ListAll(ctx, estado)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrPersistencia.Code, appErrors.ErrPersistencia.Status, "failed to load pre-registrations")
	}

	now := s.now().UTC()
	data := export.Dataset{
		Title:   "Preregistros de estudiantes",
		Headers: []string{"Apellido", "Nombre", "DNI", "Codigo", "Estado", "Vence"},
		Rows:    make([][]string, 0, len(records)),
	}
	for i := range records {
		rec := &records[i]
		data.Rows = append(data.Rows, []string{
			rec.Apellido,
			rec.Nombre,
			rec.DNI,
			studentcode.Format(rec.CodigoEstudiante),
			string(rec.EstadoEfectivoEn(now)),
			rec.FechaVencimiento.Format("2006-01-02"),
		})
	}

	var payload []byte
	var contentType string
	switch formato {
	case "pdf":
		payload, err = export.NewPDFExporter().Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		contentType = "application/pdf"
	case "", "csv":
		formato = "csv"
		payload, err = export.NewCSVExporter().Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		contentType = "text/csv"
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "formato debe ser csv o pdf")
	}

	if s.archive != nil {
		name := fmt.Sprintf("preregistros-%s.%s", now.Format("20060102-150405"), formato)
		if _, err := s.archive.Save(name, payload); err != nil {
			s.logger.Warn("failed to archive export", zap.String("file", name), zap.Error(err))
		}
	}
	return payload, contentType, nil
}

func (s *PreRegistrationService) detail(rec *models.PreRegistration, now time.Time) *models.PreRegistrationDetail {
	return &models.PreRegistrationDetail{
		PreRegistration: *rec,
		EstadoEfectivo:  rec.EstadoEfectivoEn(now),
		CodigoDisplay:   studentcode.Format(rec.CodigoEstudiante),
	}
}

func (s *PreRegistrationService) invalidateListings(ctx context.Context) {
	s.cache.Invalidate(ctx, "preregistros:*")
}

func (s *PreRegistrationService) writeAudit(ctx context.Context, action, resourceID string, oldValues, newValues map[string]interface{}, meta ActionMeta) {
	if s.audit == nil {
		return
	}
	var oldPayload, newPayload []byte
	if oldValues != nil {
		oldPayload, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		newPayload, _ = json.Marshal(newValues)
	}
	var actor *string
	if meta.ActorID != "" {
		actor = &meta.ActorID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actor,
		Action:     action,
		Resource:   "pre_registrations",
		ResourceID: &resourceID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}

func listCacheKey(filter models.PreRegistrationFilter) string {
	return fmt.Sprintf("preregistros:list:%s:%s:%d:%d:%s:%s",
		filter.Search, filter.Estado, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
