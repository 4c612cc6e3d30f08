package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/repository"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/studentcode"
)

type importRepository interface {
	FindByDNI(ctx context.Context, dni string) (*models.PreRegistration, error)
	Create(ctx context.Context, rec *models.PreRegistration) error
}

// ImportConfig bounds bulk imports.
type ImportConfig struct {
	DiasVigencia int
	MaxFilas     int
}

// ImportService reconciles bulk-uploaded rows against the store and creates
// a pre-registration per valid row. Rows are independent: one bad row never
// aborts the batch, and results accumulate in an ImportReport.
type ImportService struct {
	repo    importRepository
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     ImportConfig
}

// NewImportService constructs an ImportService. A nil audit writer disables
// the batch audit entry.
func NewImportService(repo importRepository, audit auditWriter, metrics *MetricsService, logger *zap.Logger, cfg ImportConfig) *ImportService {
	if cfg.DiasVigencia <= 0 {
		cfg.DiasVigencia = 30
	}
	if cfg.MaxFilas <= 0 {
		cfg.MaxFilas = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{repo: repo, audit: audit, metrics: metrics, logger: logger, now: time.Now, cfg: cfg}
}

// ImportCSV parses the upload format (UTF-8, comma separated, header row
// "nombre,apellido,dni") and imports its rows.
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader, meta ActionMeta) (*models.ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "archivo csv vacio o ilegible")
	}
	if !validImportHeader(header) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "la cabecera debe ser nombre,apellido,dni")
	}

	var rows []models.ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fila csv malformada")
		}
		row := models.ImportRow{}
		if len(record) > 0 {
			row.Nombre = strings.TrimSpace(record[0])
		}
		if len(record) > 1 {
			row.Apellido = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			row.DNI = strings.TrimSpace(record[2])
		}
		rows = append(rows, row)
		if len(rows) > s.cfg.MaxFilas {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("el archivo supera el maximo de %d filas", s.cfg.MaxFilas))
		}
	}

	return s.Import(ctx, rows, meta)
}

// Import processes rows independently and returns the accumulated report.
// Line numbers in the report count the header as line 1.
func (s *ImportService) Import(ctx context.Context, rows []models.ImportRow, meta ActionMeta) (*models.ImportReport, error) {
	now := s.now().UTC()
	report := &models.ImportReport{
		Errores:        []models.ImportRowError{},
		DNISDuplicados: []string{},
		DNISExistentes: []models.ImportExisting{},
	}
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		report.Procesados++
		linea := i + 2

		if msg := validateImportRow(row); msg != "" {
			report.Errores = append(report.Errores, models.ImportRowError{Linea: linea, Error: msg, Datos: row})
			s.metrics.RecordImportRow("invalid")
			continue
		}

		if _, dup := seen[row.DNI]; dup {
			report.DNISDuplicados = append(report.DNISDuplicados, row.DNI)
			s.metrics.RecordImportRow("duplicate_in_file")
			continue
		}
		seen[row.DNI] = struct{}{}

		existing, err := s.repo.FindByDNI(ctx, row.DNI)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			report.Errores = append(report.Errores, models.ImportRowError{Linea: linea, Error: "error consultando el dni", Datos: row})
			s.metrics.RecordImportRow("error")
			s.logger.Warn("import lookup failed", zap.String("dni", row.DNI), zap.Error(err))
			continue
		}
		if existing != nil {
			report.DNISExistentes = append(report.DNISExistentes, models.ImportExisting{
				DNI:      existing.DNI,
				Nombre:   existing.Nombre,
				Apellido: existing.Apellido,
			})
			s.metrics.RecordImportRow("already_exists")
			continue
		}

		rec, err := buildPreRegistration(row.Nombre, row.Apellido, row.DNI, now, s.cfg.DiasVigencia)
		if err != nil {
			report.Errores = append(report.Errores, models.ImportRowError{Linea: linea, Error: err.Error(), Datos: row})
			s.metrics.RecordImportRow("invalid")
			continue
		}
		if err := s.repo.Create(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicado) {
				report.DNISExistentes = append(report.DNISExistentes, models.ImportExisting{
					DNI: row.DNI, Nombre: row.Nombre, Apellido: row.Apellido,
				})
				s.metrics.RecordImportRow("already_exists")
				continue
			}
			report.Errores = append(report.Errores, models.ImportRowError{Linea: linea, Error: "error al crear el preregistro", Datos: row})
			s.metrics.RecordImportRow("error")
			s.logger.Warn("import create failed", zap.String("dni", row.DNI), zap.Error(err))
			continue
		}

		report.Creados++
		s.metrics.RecordImportRow("created")
		s.metrics.RecordPreRegistrationCreated()
	}

	s.logger.Info("bulk import finished",
		zap.Int("procesados", report.Procesados),
		zap.Int("creados", report.Creados),
		zap.Int("errores", len(report.Errores)),
		zap.Int("duplicados", len(report.DNISDuplicados)),
		zap.Int("existentes", len(report.DNISExistentes)),
	)
	s.writeAudit(ctx, report, meta)
	return report, nil
}

func (s *ImportService) writeAudit(ctx context.Context, report *models.ImportReport, meta ActionMeta) {
	if s.audit == nil {
		return
	}
	summary, _ := json.Marshal(map[string]interface{}{
		"procesados": report.Procesados,
		"creados":    report.Creados,
		"errores":    len(report.Errores),
		"duplicados": len(report.DNISDuplicados),
		"existentes": len(report.DNISExistentes),
	})
	var actor *string
	if meta.ActorID != "" {
		actor = &meta.ActorID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    actor,
		Action:    models.AuditActionPreRegImport,
		Resource:  "pre_registrations",
		NewValues: summary,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record import audit log", zap.Error(err))
	}
}

func validImportHeader(header []string) bool {
	if len(header) < 3 {
		return false
	}
	want := [3]string{"nombre", "apellido", "dni"}
	for i, col := range want {
		got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF")))
		if got != col {
			return false
		}
	}
	return true
}

func validateImportRow(row models.ImportRow) string {
	switch {
	case row.Nombre == "":
		return "nombre vacio"
	case row.Apellido == "":
		return "apellido vacio"
	case !studentcode.ValidDNI(row.DNI):
		return "dni debe tener exactamente 8 digitos"
	default:
		return ""
	}
}

// buildPreRegistration assembles a fresh pending record with its derived
// enrollment code. Shared by single create and bulk import.
func buildPreRegistration(nombre, apellido, dni string, now time.Time, diasVigencia int) (*models.PreRegistration, error) {
	codigo, err := studentcode.Generate(dni)
	if err != nil {
		return nil, err
	}
	return &models.PreRegistration{
		Nombre:           nombre,
		Apellido:         apellido,
		DNI:              dni,
		CodigoEstudiante: codigo,
		EstadoRegistro:   models.EstadoPendiente,
		FechaCreacion:    now,
		FechaVencimiento: now.Add(time.Duration(diasVigencia) * 24 * time.Hour),
	}, nil
}
