package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
)

func newPreRegRepoMock(t *testing.T) (*PreRegistrationRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewPreRegistrationRepository(sqlxDB), mock, func() { db.Close() }
}

func preRegRows(rec models.PreRegistration) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "nombre", "apellido", "dni", "codigo_estudiante", "estado_registro",
		"fecha_creacion", "fecha_vencimiento", "fecha_completado", "email", "telefono",
		"password_hash_pendiente", "codigo_verificacion", "codigo_verificacion_expira",
		"ultimo_reenvio", "intentos_reenvio", "created_at", "updated_at",
	}).AddRow(
		rec.ID, rec.Nombre, rec.Apellido, rec.DNI, rec.CodigoEstudiante, rec.EstadoRegistro,
		rec.FechaCreacion, rec.FechaVencimiento, rec.FechaCompletado, rec.Email, rec.Telefono,
		rec.PasswordHashPendiente, rec.CodigoVerificacion, rec.CodigoVerificacionExpira,
		rec.UltimoReenvio, rec.IntentosReenvio, rec.CreatedAt, rec.UpdatedAt,
	)
}

func TestPreRegistrationRepositoryFindByDNI(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rec := models.PreRegistration{
		ID:               "pr-1",
		Nombre:           "Ana",
		Apellido:         "Lopez",
		DNI:              "11111111",
		CodigoEstudiante: "20111111119",
		EstadoRegistro:   models.EstadoPendiente,
		FechaCreacion:    now,
		FechaVencimiento: now.Add(30 * 24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	mock.ExpectQuery("(?s)SELECT .+ FROM pre_registrations WHERE dni = \\$1").
		WithArgs("11111111").
		WillReturnRows(preRegRows(rec))

	got, err := repo.FindByDNI(context.Background(), "11111111")
	require.NoError(t, err)
	assert.Equal(t, "pr-1", got.ID)
	assert.Equal(t, models.EstadoPendiente, got.EstadoRegistro)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryCreate(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pre_registrations").
		WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now().UTC()
	rec := &models.PreRegistration{
		Nombre:           "Ana",
		Apellido:         "Lopez",
		DNI:              "11111111",
		CodigoEstudiante: "20111111119",
		EstadoRegistro:   models.EstadoPendiente,
		FechaCreacion:    now,
		FechaVencimiento: now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryCreateDuplicate(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO pre_registrations").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.PreRegistration{
		Nombre: "Ana", Apellido: "Lopez", DNI: "11111111", CodigoEstudiante: "20111111119",
		EstadoRegistro: models.EstadoPendiente,
	})
	assert.ErrorIs(t, err, ErrDuplicado)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryUpdateStatusCAS(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	swapped, err := repo.UpdateStatusCAS(context.Background(), "pr-1", models.EstadoPendiente, models.EstadoSuspendido, nil)
	require.NoError(t, err)
	assert.True(t, swapped)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	swapped, err = repo.UpdateStatusCAS(context.Background(), "pr-1", models.EstadoCancelado, models.EstadoPendiente, nil)
	require.NoError(t, err)
	assert.False(t, swapped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryUpdateVerificationCAS(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	codigo := "123456"
	expira := now.Add(15 * time.Minute)
	upd := models.VerificationUpdate{Codigo: &codigo, Expira: &expira, UltimoReenvio: &now, IntentosReenvio: 2}
	cutoff := now.Add(-time.Minute)

	mock.ExpectExec("(?s)UPDATE pre_registrations.+ultimo_reenvio IS NULL OR ultimo_reenvio <= ").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 2, sqlmock.AnyArg(), "pr-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	swapped, err := repo.UpdateVerificationCAS(context.Background(), "pr-1", upd, cutoff)
	require.NoError(t, err)
	assert.True(t, swapped)

	// A concurrent resend already advanced ultimo_reenvio past the cutoff.
	mock.ExpectExec("(?s)UPDATE pre_registrations.+ultimo_reenvio IS NULL OR ultimo_reenvio <= ").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 2, sqlmock.AnyArg(), "pr-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	swapped, err = repo.UpdateVerificationCAS(context.Background(), "pr-1", upd, cutoff)
	require.NoError(t, err)
	assert.False(t, swapped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryConsumeVerification(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WithArgs(sqlmock.AnyArg(), "pr-1", "123456", models.EstadoPendiente).
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumed, err := repo.ConsumeVerification(context.Background(), "pr-1", "123456")
	require.NoError(t, err)
	assert.True(t, consumed)

	// Same code a second time: already cleared, nothing to consume.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WithArgs(sqlmock.AnyArg(), "pr-1", "123456", models.EstadoPendiente).
		WillReturnResult(sqlmock.NewResult(0, 0))

	consumed, err = repo.ConsumeVerification(context.Background(), "pr-1", "123456")
	require.NoError(t, err)
	assert.False(t, consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryFinalizeActivation(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.PreRegistration{ID: "pr-1", Nombre: "Ana", Apellido: "Lopez", DNI: "11111111"}
	profile := models.ActivationProfile{
		Email:        "ana@example.com",
		Telefono:     "987654321",
		PasswordHash: "$2a$10$hash",
		Completado:   time.Now().UTC(),
	}
	activated, err := repo.FinalizeActivation(context.Background(), rec, profile)
	require.NoError(t, err)
	assert.True(t, activated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreRegistrationRepositoryFinalizeActivationAlreadyActive(t *testing.T) {
	repo, mock, cleanup := newPreRegRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pre_registrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	rec := &models.PreRegistration{ID: "pr-1", Nombre: "Ana", Apellido: "Lopez", DNI: "11111111"}
	activated, err := repo.FinalizeActivation(context.Background(), rec, models.ActivationProfile{})
	require.NoError(t, err)
	assert.False(t, activated)
	require.NoError(t, mock.ExpectationsWereMet())
}
