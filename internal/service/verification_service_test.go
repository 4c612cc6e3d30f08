package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/mailer"
)

type mockVerificationRepo struct {
	records map[string]*models.PreRegistration

	// snapshot, when set, is what reads observe instead of the live
	// record, while writes still hit the live one.
	snapshot *models.PreRegistration
}

func (m *mockVerificationRepo) FindByID(ctx context.Context, id string) (*models.PreRegistration, error) {
	if m.snapshot != nil && m.snapshot.ID == id {
		clone := *m.snapshot
		return &clone, nil
	}
	if rec, ok := m.records[id]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVerificationRepo) UpdateVerification(ctx context.Context, id string, upd models.VerificationUpdate) error {
	rec, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	rec.CodigoVerificacion = upd.Codigo
	rec.CodigoVerificacionExpira = upd.Expira
	rec.UltimoReenvio = upd.UltimoReenvio
	rec.IntentosReenvio = upd.IntentosReenvio
	return nil
}

func (m *mockVerificationRepo) UpdateVerificationCAS(ctx context.Context, id string, upd models.VerificationUpdate, cutoff time.Time) (bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if rec.UltimoReenvio != nil && rec.UltimoReenvio.After(cutoff) {
		return false, nil
	}
	return true, m.UpdateVerification(ctx, id, upd)
}

func (m *mockVerificationRepo) ConsumeVerification(ctx context.Context, id, codigo string) (bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if rec.CodigoVerificacion == nil || *rec.CodigoVerificacion != codigo || rec.EstadoRegistro != models.EstadoPendiente {
		return false, nil
	}
	rec.CodigoVerificacion = nil
	rec.CodigoVerificacionExpira = nil
	return true, nil
}

type mockMailer struct {
	sent []mailer.Message
	fail bool
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func verifiableRecord(dni string) *models.PreRegistration {
	email := "student@test.edu.pe"
	return &models.PreRegistration{
		ID:               "rec-" + dni,
		Nombre:           "Jose",
		Apellido:         "Campos",
		DNI:              dni,
		CodigoEstudiante: "20" + dni + "0",
		EstadoRegistro:   models.EstadoPendiente,
		Email:            &email,
	}
}

func newVerificationService(repo *mockVerificationRepo, sender mailer.Sender, now time.Time) *VerificationCodeService {
	svc := NewVerificationCodeService(repo, sender, nil, nil, VerificationConfig{
		CodigoTTL:        15 * time.Minute,
		ReenvioCooldown:  time.Minute,
		ReenvioMaxDiario: 3,
	})
	svc.now = fixedClock(now)
	return svc
}

func TestIssueStoresCodeAndSendsEmail(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	sender := &mockMailer{}
	svc := newVerificationService(repo, sender, now)

	require.NoError(t, svc.Issue(context.Background(), rec.ID))

	stored := repo.records[rec.ID]
	require.NotNil(t, stored.CodigoVerificacion)
	assert.Len(t, *stored.CodigoVerificacion, 6)
	require.NotNil(t, stored.CodigoVerificacionExpira)
	assert.Equal(t, now.Add(15*time.Minute), *stored.CodigoVerificacionExpira)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "student@test.edu.pe", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, *stored.CodigoVerificacion)
}

func TestIssueOverwritesPreviousCode(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	old := "111111"
	oldExpira := now.Add(5 * time.Minute)
	rec.CodigoVerificacion = &old
	rec.CodigoVerificacionExpira = &oldExpira
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{}, now)

	require.NoError(t, svc.Issue(context.Background(), rec.ID))

	stored := repo.records[rec.ID]
	assert.NotEqual(t, old, *stored.CodigoVerificacion)

	// The replaced code no longer verifies.
	err := svc.Verify(context.Background(), rec.ID, old)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodigoIncorrecto.Code, appErrors.FromError(err).Code)
}

func TestIssueEmailFailureSurfaces(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{fail: true}, now)

	err := svc.Issue(context.Background(), rec.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnvioEmail.Code, appErrors.FromError(err).Code)
}

func TestVerifyConsumesCodeOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{}, now)

	require.NoError(t, svc.Issue(context.Background(), rec.ID))
	codigo := *repo.records[rec.ID].CodigoVerificacion

	require.NoError(t, svc.Verify(context.Background(), rec.ID, codigo))

	err := svc.Verify(context.Background(), rec.ID, codigo)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodigoIncorrecto.Code, appErrors.FromError(err).Code)
}

func TestVerifyExpiredCode(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	codigo := "654321"
	expira := now.Add(-time.Second)
	rec.CodigoVerificacion = &codigo
	rec.CodigoVerificacionExpira = &expira
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{}, now)

	err := svc.Verify(context.Background(), rec.ID, codigo)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodigoExpirado.Code, appErrors.FromError(err).Code)
}

func TestVerifyWrongCode(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	codigo := "654321"
	expira := now.Add(10 * time.Minute)
	rec.CodigoVerificacion = &codigo
	rec.CodigoVerificacionExpira = &expira
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{}, now)

	err := svc.Verify(context.Background(), rec.ID, "000000")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodigoIncorrecto.Code, appErrors.FromError(err).Code)
}

func TestResendCooldown(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	sender := &mockMailer{}
	svc := newVerificationService(repo, sender, start)

	require.NoError(t, svc.Issue(context.Background(), rec.ID))

	// 30 seconds later the cooldown still applies.
	svc.now = fixedClock(start.Add(30 * time.Second))
	err := svc.Resend(context.Background(), rec.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "retry_after_seconds")

	// 61 seconds after the issue it goes through.
	svc.now = fixedClock(start.Add(61 * time.Second))
	require.NoError(t, svc.Resend(context.Background(), rec.ID))
	assert.Len(t, sender.sent, 2)
}

func TestResendStaleReadCannotBypassCooldown(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	lastResend := now.Add(-2 * time.Minute)
	rec.UltimoReenvio = &lastResend
	rec.IntentosReenvio = 1
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	sender := &mockMailer{}
	svc := newVerificationService(repo, sender, now)

	// Both requests read the same snapshot, taken before either wrote.
	snapshot := *rec
	repo.snapshot = &snapshot

	require.NoError(t, svc.Resend(context.Background(), rec.ID))

	// The second request passed the read-side check against the stale
	// snapshot, but the guarded write sees the winner's timestamp.
	err := svc.Resend(context.Background(), rec.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErrors.FromError(err).Code)

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 2, repo.records[rec.ID].IntentosReenvio)
}

func TestResendDailyCap(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	rec := verifiableRecord("12345678")
	repo := &mockVerificationRepo{records: map[string]*models.PreRegistration{rec.ID: rec}}
	svc := newVerificationService(repo, &mockMailer{}, start)

	require.NoError(t, svc.Issue(context.Background(), rec.ID))

	clock := start
	for i := 0; i < 3; i++ {
		clock = clock.Add(2 * time.Minute)
		svc.now = fixedClock(clock)
		require.NoError(t, svc.Resend(context.Background(), rec.ID))
	}

	clock = clock.Add(2 * time.Minute)
	svc.now = fixedClock(clock)
	err := svc.Resend(context.Background(), rec.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErrors.FromError(err).Code)

	// The counter resets the next day.
	svc.now = fixedClock(start.AddDate(0, 0, 1))
	require.NoError(t, svc.Resend(context.Background(), rec.ID))
	assert.Equal(t, 1, repo.records[rec.ID].IntentosReenvio)
}
