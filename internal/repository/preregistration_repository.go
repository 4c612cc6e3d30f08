package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
)

// ErrDuplicado is returned when an insert violates the dni or
// codigo_estudiante uniqueness constraints.
var ErrDuplicado = errors.New("repository: dni o codigo de estudiante duplicado")

const pqUniqueViolation = "23505"

const preRegColumns = `id, nombre, apellido, dni, codigo_estudiante, estado_registro,
        fecha_creacion, fecha_vencimiento, fecha_completado, email, telefono,
        password_hash_pendiente, codigo_verificacion, codigo_verificacion_expira,
        ultimo_reenvio, intentos_reenvio, created_at, updated_at`

// PreRegistrationRepository manages persistence for pre-registration records.
type PreRegistrationRepository struct {
	db *sqlx.DB
}

// NewPreRegistrationRepository constructs a PreRegistrationRepository.
func NewPreRegistrationRepository(db *sqlx.DB) *PreRegistrationRepository {
	return &PreRegistrationRepository{db: db}
}

// FindByDNI fetches a record by national identity number.
func (r *PreRegistrationRepository) FindByDNI(ctx context.Context, dni string) (*models.PreRegistration, error) {
	query := fmt.Sprintf("SELECT %s FROM pre_registrations WHERE dni = $1", preRegColumns)
	var rec models.PreRegistration
	if err := r.db.GetContext(ctx, &rec, query, dni); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByCodigo fetches a record by its normalized enrollment code.
func (r *PreRegistrationRepository) FindByCodigo(ctx context.Context, codigo string) (*models.PreRegistration, error) {
	query := fmt.Sprintf("SELECT %s FROM pre_registrations WHERE codigo_estudiante = $1", preRegColumns)
	var rec models.PreRegistration
	if err := r.db.GetContext(ctx, &rec, query, codigo); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByID fetches a record by ID.
func (r *PreRegistrationRepository) FindByID(ctx context.Context, id string) (*models.PreRegistration, error) {
	query := fmt.Sprintf("SELECT %s FROM pre_registrations WHERE id = $1", preRegColumns)
	var rec models.PreRegistration
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new pre-registration. Uniqueness of dni and
// codigo_estudiante is enforced by the database; violations surface
// as ErrDuplicado.
func (r *PreRegistrationRepository) Create(ctx context.Context, rec *models.PreRegistration) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	const query = `INSERT INTO pre_registrations
        (id, nombre, apellido, dni, codigo_estudiante, estado_registro, fecha_creacion,
         fecha_vencimiento, intentos_reenvio, created_at, updated_at)
        VALUES (:id, :nombre, :apellido, :dni, :codigo_estudiante, :estado_registro, :fecha_creacion,
         :fecha_vencimiento, :intentos_reenvio, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicado
		}
		return fmt.Errorf("create pre-registration: %w", err)
	}
	return nil
}

// UpdateStatusCAS moves a record between states with a compare-and-swap on
// the current state. It reports whether the swap took effect. The expiry
// date is only rewritten when fechaVencimiento is non-nil.
func (r *PreRegistrationRepository) UpdateStatusCAS(ctx context.Context, id string, desde, hacia models.EstadoRegistro, fechaVencimiento *time.Time) (bool, error) {
	const query = `UPDATE pre_registrations
        SET estado_registro = $1,
            fecha_vencimiento = COALESCE($2, fecha_vencimiento),
            updated_at = $3
        WHERE id = $4 AND estado_registro = $5`
	res, err := r.db.ExecContext(ctx, query, hacia, fechaVencimiento, time.Now().UTC(), id, desde)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateVerification writes a fresh verification code along with the resend
// bookkeeping, overwriting any previous code.
func (r *PreRegistrationRepository) UpdateVerification(ctx context.Context, id string, upd models.VerificationUpdate) error {
	const query = `UPDATE pre_registrations
        SET codigo_verificacion = $1,
            codigo_verificacion_expira = $2,
            ultimo_reenvio = $3,
            intentos_reenvio = $4,
            updated_at = $5
        WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query, upd.Codigo, upd.Expira, upd.UltimoReenvio, upd.IntentosReenvio, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	return nil
}

// UpdateVerificationCAS writes the verification fields like
// UpdateVerification, but only when the last resend happened at or before
// the cutoff. The cooldown predicate travels with the write, so two
// near-simultaneous resends cannot both pass: the loser matches no row.
func (r *PreRegistrationRepository) UpdateVerificationCAS(ctx context.Context, id string, upd models.VerificationUpdate, cutoff time.Time) (bool, error) {
	const query = `UPDATE pre_registrations
        SET codigo_verificacion = $1,
            codigo_verificacion_expira = $2,
            ultimo_reenvio = $3,
            intentos_reenvio = $4,
            updated_at = $5
        WHERE id = $6 AND (ultimo_reenvio IS NULL OR ultimo_reenvio <= $7)`
	res, err := r.db.ExecContext(ctx, query, upd.Codigo, upd.Expira, upd.UltimoReenvio, upd.IntentosReenvio, time.Now().UTC(), id, cutoff)
	if err != nil {
		return false, fmt.Errorf("update verification cas: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update verification cas rows: %w", err)
	}
	return affected == 1, nil
}

// ConsumeVerification clears the verification fields if and only if the
// supplied code is still the active one on a pending record. It reports
// whether the code was consumed, so concurrent confirms cannot both win.
func (r *PreRegistrationRepository) ConsumeVerification(ctx context.Context, id, codigo string) (bool, error) {
	const query = `UPDATE pre_registrations
        SET codigo_verificacion = NULL,
            codigo_verificacion_expira = NULL,
            updated_at = $1
        WHERE id = $2 AND codigo_verificacion = $3 AND estado_registro = $4`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, codigo, models.EstadoPendiente)
	if err != nil {
		return false, fmt.Errorf("consume verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume verification rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateProfilePendiente stashes the contact data and password hash supplied
// at the start of completion, pending email verification.
func (r *PreRegistrationRepository) UpdateProfilePendiente(ctx context.Context, id, email, telefono, passwordHash string) error {
	const query = `UPDATE pre_registrations
        SET email = $1, telefono = $2, password_hash_pendiente = $3, updated_at = $4
        WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, email, telefono, passwordHash, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update pending profile: %w", err)
	}
	return nil
}

// FinalizeActivation atomically creates the student account and flips the
// record to ACTIVO. The state flip is a compare-and-swap on PENDIENTE; when
// it does not take effect the whole transaction is rolled back and false is
// returned, so no half-activated record can ever be observed.
func (r *PreRegistrationRepository) FinalizeActivation(ctx context.Context, rec *models.PreRegistration, profile models.ActivationProfile) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin activation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	const updQuery = `UPDATE pre_registrations
        SET estado_registro = $1,
            fecha_completado = $2,
            email = $3,
            telefono = $4,
            password_hash_pendiente = NULL,
            codigo_verificacion = NULL,
            codigo_verificacion_expira = NULL,
            updated_at = $5
        WHERE id = $6 AND estado_registro = $7`
	res, err := tx.ExecContext(ctx, updQuery, models.EstadoActivo, profile.Completado, profile.Email, profile.Telefono, now, rec.ID, models.EstadoPendiente)
	if err != nil {
		return false, fmt.Errorf("activate record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate record rows: %w", err)
	}
	if affected != 1 {
		return false, nil
	}

	const userQuery = `INSERT INTO users
        (id, email, password_hash, nombre, apellido, dni, role, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $8)`
	if _, err := tx.ExecContext(ctx, userQuery, uuid.NewString(), strings.ToLower(profile.Email), profile.PasswordHash, rec.Nombre, rec.Apellido, rec.DNI, models.RoleStudent, now); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return false, ErrDuplicado
		}
		return false, fmt.Errorf("create student account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit activation: %w", err)
	}
	return true, nil
}

// List returns pre-registrations matching the provided filters.
func (r *PreRegistrationRepository) List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistration, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Estado != "" {
		conditions = append(conditions, fmt.Sprintf("estado_registro = $%d", len(args)+1))
		args = append(args, filter.Estado)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(nombre) LIKE $%d OR LOWER(apellido) LIKE $%d OR dni LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"apellido":          "apellido",
		"dni":               "dni",
		"fecha_creacion":    "fecha_creacion",
		"fecha_vencimiento": "fecha_vencimiento",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "fecha_creacion"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM pre_registrations WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		preRegColumns, where, column, order, size, offset)

	var records []models.PreRegistration
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pre-registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pre_registrations WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pre-registrations: %w", err)
	}
	return records, total, nil
}

// ListAll returns every record matching the optional state filter, in a
// stable order. Used by exports, which are not paginated.
func (r *PreRegistrationRepository) ListAll(ctx context.Context, estado models.EstadoRegistro) ([]models.PreRegistration, error) {
	query := fmt.Sprintf("SELECT %s FROM pre_registrations", preRegColumns)
	args := []interface{}{}
	if estado != "" {
		query += " WHERE estado_registro = $1"
		args = append(args, estado)
	}
	query += " ORDER BY apellido, nombre"

	var records []models.PreRegistration
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list all pre-registrations: %w", err)
	}
	return records, nil
}

// VencimientosPendientes returns the expiry dates of all pending records,
// letting callers derive expired / about-to-expire counts with one clock read.
func (r *PreRegistrationRepository) VencimientosPendientes(ctx context.Context) ([]time.Time, error) {
	const query = `SELECT fecha_vencimiento FROM pre_registrations WHERE estado_registro = $1`
	var fechas []time.Time
	if err := r.db.SelectContext(ctx, &fechas, query, models.EstadoPendiente); err != nil {
		return nil, fmt.Errorf("pending expiries: %w", err)
	}
	return fechas, nil
}

// CountByEstado aggregates record totals per persisted state.
func (r *PreRegistrationRepository) CountByEstado(ctx context.Context) ([]models.EstadoCount, error) {
	const query = `SELECT estado_registro, COUNT(*) AS total
        FROM pre_registrations GROUP BY estado_registro ORDER BY estado_registro`
	var counts []models.EstadoCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count by estado: %w", err)
	}
	return counts, nil
}
