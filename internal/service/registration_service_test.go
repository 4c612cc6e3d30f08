package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
)

// mockRegistrationStore backs the whole completion flow in memory so the
// interplay of validation, codes and activation can be exercised end to end.
type mockRegistrationStore struct {
	records map[string]*models.PreRegistration
	users   []models.ActivationProfile
}

func (m *mockRegistrationStore) byDNI(dni string) *models.PreRegistration {
	for _, rec := range m.records {
		if rec.DNI == dni {
			return rec
		}
	}
	return nil
}

func (m *mockRegistrationStore) FindByDNI(ctx context.Context, dni string) (*models.PreRegistration, error) {
	if rec := m.byDNI(dni); rec != nil {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationStore) FindByID(ctx context.Context, id string) (*models.PreRegistration, error) {
	if rec, ok := m.records[id]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationStore) UpdateVerification(ctx context.Context, id string, upd models.VerificationUpdate) error {
	rec := m.records[id]
	rec.CodigoVerificacion = upd.Codigo
	rec.CodigoVerificacionExpira = upd.Expira
	rec.UltimoReenvio = upd.UltimoReenvio
	rec.IntentosReenvio = upd.IntentosReenvio
	return nil
}

func (m *mockRegistrationStore) UpdateVerificationCAS(ctx context.Context, id string, upd models.VerificationUpdate, cutoff time.Time) (bool, error) {
	rec, ok := m.records[id]
	if !ok {
		return false, nil
	}
	if rec.UltimoReenvio != nil && rec.UltimoReenvio.After(cutoff) {
		return false, nil
	}
	return true, m.UpdateVerification(ctx, id, upd)
}

func (m *mockRegistrationStore) ConsumeVerification(ctx context.Context, id, codigo string) (bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.CodigoVerificacion == nil || *rec.CodigoVerificacion != codigo || rec.EstadoRegistro != models.EstadoPendiente {
		return false, nil
	}
	rec.CodigoVerificacion = nil
	rec.CodigoVerificacionExpira = nil
	return true, nil
}

func (m *mockRegistrationStore) UpdateProfilePendiente(ctx context.Context, id, email, telefono, passwordHash string) error {
	rec := m.records[id]
	rec.Email = &email
	rec.Telefono = &telefono
	rec.PasswordHashPendiente = &passwordHash
	return nil
}

func (m *mockRegistrationStore) FinalizeActivation(ctx context.Context, rec *models.PreRegistration, profile models.ActivationProfile) (bool, error) {
	stored := m.records[rec.ID]
	if stored.EstadoRegistro != models.EstadoPendiente {
		return false, nil
	}
	stored.EstadoRegistro = models.EstadoActivo
	completado := profile.Completado
	stored.FechaCompletado = &completado
	m.users = append(m.users, profile)
	return true, nil
}

func newRegistrationFixture(t *testing.T, now time.Time) (*RegistrationService, *mockRegistrationStore, *mockMailer) {
	t.Helper()
	rec := pendingRecord(t, "12345678", now.AddDate(0, 0, 20))
	store := &mockRegistrationStore{records: map[string]*models.PreRegistration{rec.ID: rec}}
	sender := &mockMailer{}

	validation := NewValidationService(store, nil)
	validation.now = fixedClock(now)

	codes := NewVerificationCodeService(store, sender, nil, nil, VerificationConfig{
		CodigoTTL:       15 * time.Minute,
		ReenvioCooldown: time.Minute,
	})
	codes.now = fixedClock(now)

	svc := NewRegistrationService(validation, codes, store, nil, nil, nil)
	svc.now = fixedClock(now)
	return svc, store, sender
}

func startRequest(t *testing.T, store *mockRegistrationStore) StartRegistrationRequest {
	t.Helper()
	rec := store.byDNI("12345678")
	require.NotNil(t, rec)
	return StartRegistrationRequest{
		CodigoEstudiante: rec.CodigoEstudiante,
		DNI:              rec.DNI,
		Email:            "Maria.G@Gmail.com",
		Telefono:         "987654321",
		Password:         "secreto-123",
	}
}

func TestStartHashesPasswordAndIssuesCode(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store, sender := newRegistrationFixture(t, now)

	resp, err := svc.Start(context.Background(), startRequest(t, store))
	require.NoError(t, err)
	assert.Equal(t, "m***@gmail.com", resp.EmailHint)

	rec := store.byDNI("12345678")
	require.NotNil(t, rec.Email)
	assert.Equal(t, "maria.g@gmail.com", *rec.Email)
	require.NotNil(t, rec.PasswordHashPendiente)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*rec.PasswordHashPendiente), []byte("secreto-123")))
	require.NotNil(t, rec.CodigoVerificacion)
	require.Len(t, sender.sent, 1)
}

func TestStartRejectsWeakPayload(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newRegistrationFixture(t, now)

	req := startRequest(t, store)
	req.Password = "corto"
	_, err := svc.Start(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConfirmActivatesAtomically(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newRegistrationFixture(t, now)

	_, err := svc.Start(context.Background(), startRequest(t, store))
	require.NoError(t, err)
	codigo := *store.byDNI("12345678").CodigoVerificacion

	err = svc.Confirm(context.Background(), ConfirmRegistrationRequest{DNI: "12345678", Codigo: codigo})
	require.NoError(t, err)

	rec := store.byDNI("12345678")
	assert.Equal(t, models.EstadoActivo, rec.EstadoRegistro)
	require.NotNil(t, rec.FechaCompletado)
	require.Len(t, store.users, 1)
	assert.Equal(t, "maria.g@gmail.com", store.users[0].Email)
}

func TestConfirmAfterActivationFails(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newRegistrationFixture(t, now)

	_, err := svc.Start(context.Background(), startRequest(t, store))
	require.NoError(t, err)
	codigo := *store.byDNI("12345678").CodigoVerificacion

	require.NoError(t, svc.Confirm(context.Background(), ConfirmRegistrationRequest{DNI: "12345678", Codigo: codigo}))

	// The code was consumed and the record is no longer pending, so a
	// second confirm can never succeed, let alone mint another account.
	err = svc.Confirm(context.Background(), ConfirmRegistrationRequest{DNI: "12345678", Codigo: codigo})
	require.Error(t, err)
	assert.Len(t, store.users, 1)
}

func TestConfirmWrongCodeLeavesRecordPending(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newRegistrationFixture(t, now)

	_, err := svc.Start(context.Background(), startRequest(t, store))
	require.NoError(t, err)

	err = svc.Confirm(context.Background(), ConfirmRegistrationRequest{DNI: "12345678", Codigo: "000000"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCodigoIncorrecto.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.EstadoPendiente, store.byDNI("12345678").EstadoRegistro)
	assert.Empty(t, store.users)
}
