package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/mailer"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/response"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/studentcode"
)

type fakeRegistrationStore struct {
	records map[string]*models.PreRegistration
}

func (f *fakeRegistrationStore) byDNI(dni string) *models.PreRegistration {
	for _, rec := range f.records {
		if rec.DNI == dni {
			return rec
		}
	}
	return nil
}

func (f *fakeRegistrationStore) FindByDNI(ctx context.Context, dni string) (*models.PreRegistration, error) {
	if rec := f.byDNI(dni); rec != nil {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistrationStore) FindByID(ctx context.Context, id string) (*models.PreRegistration, error) {
	if rec, ok := f.records[id]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRegistrationStore) UpdateVerification(ctx context.Context, id string, upd models.VerificationUpdate) error {
	rec := f.records[id]
	rec.CodigoVerificacion = upd.Codigo
	rec.CodigoVerificacionExpira = upd.Expira
	rec.UltimoReenvio = upd.UltimoReenvio
	rec.IntentosReenvio = upd.IntentosReenvio
	return nil
}

func (f *fakeRegistrationStore) UpdateVerificationCAS(ctx context.Context, id string, upd models.VerificationUpdate, cutoff time.Time) (bool, error) {
	rec, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if rec.UltimoReenvio != nil && rec.UltimoReenvio.After(cutoff) {
		return false, nil
	}
	return true, f.UpdateVerification(ctx, id, upd)
}

func (f *fakeRegistrationStore) ConsumeVerification(ctx context.Context, id, codigo string) (bool, error) {
	rec, ok := f.records[id]
	if !ok || rec.CodigoVerificacion == nil || *rec.CodigoVerificacion != codigo {
		return false, nil
	}
	rec.CodigoVerificacion = nil
	rec.CodigoVerificacionExpira = nil
	return true, nil
}

func (f *fakeRegistrationStore) UpdateProfilePendiente(ctx context.Context, id, email, telefono, passwordHash string) error {
	rec := f.records[id]
	rec.Email = &email
	rec.Telefono = &telefono
	rec.PasswordHashPendiente = &passwordHash
	return nil
}

func (f *fakeRegistrationStore) FinalizeActivation(ctx context.Context, rec *models.PreRegistration, profile models.ActivationProfile) (bool, error) {
	stored := f.records[rec.ID]
	if stored.EstadoRegistro != models.EstadoPendiente {
		return false, nil
	}
	stored.EstadoRegistro = models.EstadoActivo
	return true, nil
}

type fakeSender struct{ sent int }

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	f.sent++
	return nil
}

func newRegistrationHandler(t *testing.T) (*RegistrationHandler, *fakeRegistrationStore) {
	t.Helper()
	codigo, err := studentcode.Generate("12345678")
	require.NoError(t, err)
	store := &fakeRegistrationStore{records: map[string]*models.PreRegistration{
		"rec-1": {
			ID:               "rec-1",
			Nombre:           "Maria",
			Apellido:         "Gonzales",
			DNI:              "12345678",
			CodigoEstudiante: codigo,
			EstadoRegistro:   models.EstadoPendiente,
			FechaVencimiento: time.Now().UTC().AddDate(0, 0, 20),
		},
	}}
	validation := service.NewValidationService(store, nil)
	codes := service.NewVerificationCodeService(store, &fakeSender{}, nil, nil, service.VerificationConfig{})
	registration := service.NewRegistrationService(validation, codes, store, nil, nil, nil)
	return NewRegistrationHandler(validation, registration), store
}

func postJSON(t *testing.T, h gin.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)
	return rec
}

func TestRegistrationHandlerValidateSuccess(t *testing.T) {
	handler, store := newRegistrationHandler(t)
	rec := store.byDNI("12345678")

	w := postJSON(t, handler.Validate, "/registro/validar", gin.H{
		"codigo_estudiante": studentcode.Format(rec.CodigoEstudiante),
		"dni":               rec.DNI,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Maria", data["nombre"])
}

func TestRegistrationHandlerValidateWrongDNI(t *testing.T) {
	handler, store := newRegistrationHandler(t)
	rec := store.byDNI("12345678")

	w := postJSON(t, handler.Validate, "/registro/validar", gin.H{
		"codigo_estudiante": rec.CodigoEstudiante,
		"dni":               "87654321",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
}

func TestRegistrationHandlerValidateMissingBody(t *testing.T) {
	handler, _ := newRegistrationHandler(t)

	w := postJSON(t, handler.Validate, "/registro/validar", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandlerStartThenConfirm(t *testing.T) {
	handler, store := newRegistrationHandler(t)
	rec := store.byDNI("12345678")

	w := postJSON(t, handler.Start, "/registro/iniciar", gin.H{
		"codigo_estudiante": rec.CodigoEstudiante,
		"dni":               rec.DNI,
		"email":             "maria@gmail.com",
		"telefono":          "987654321",
		"password":          "secreto-123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.byDNI("12345678").CodigoVerificacion)

	w = postJSON(t, handler.Confirm, "/registro/confirmar", gin.H{
		"dni":    rec.DNI,
		"codigo": *store.byDNI("12345678").CodigoVerificacion,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EstadoActivo, store.byDNI("12345678").EstadoRegistro)
}
