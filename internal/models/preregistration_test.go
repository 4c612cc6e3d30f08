package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerivarEstadoEfectivo(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		estado      EstadoRegistro
		vencimiento time.Time
		want        EstadoEfectivo
	}{
		{"pendiente lejos del vencimiento", EstadoPendiente, now.Add(20 * 24 * time.Hour), EfectivoPendiente},
		{"pendiente dentro de la ventana", EstadoPendiente, now.Add(3 * 24 * time.Hour), EfectivoPorVencer},
		{"pendiente exactamente en la ventana", EstadoPendiente, now.Add(VentanaPorVencer), EfectivoPorVencer},
		{"pendiente en el instante exacto del vencimiento", EstadoPendiente, now, EfectivoPendiente},
		{"pendiente vencido", EstadoPendiente, now.Add(-time.Minute), EfectivoExpirado},
		{"activo nunca vence", EstadoActivo, now.Add(-time.Hour), EfectivoActivo},
		{"suspendido nunca vence", EstadoSuspendido, now.Add(-time.Hour), EfectivoSuspendido},
		{"cancelado nunca vence", EstadoCancelado, now.Add(-time.Hour), EfectivoCancelado},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivarEstadoEfectivo(tc.estado, tc.vencimiento, now))
		})
	}
}

func TestPuedeTransicionar(t *testing.T) {
	assert.True(t, PuedeTransicionar(EstadoPendiente, EstadoSuspendido))
	assert.True(t, PuedeTransicionar(EstadoSuspendido, EstadoPendiente))
	assert.True(t, PuedeTransicionar(EstadoActivo, EstadoSuspendido))
	assert.True(t, PuedeTransicionar(EstadoSuspendido, EstadoActivo))
	assert.True(t, PuedeTransicionar(EstadoPendiente, EstadoCancelado))
	assert.True(t, PuedeTransicionar(EstadoActivo, EstadoCancelado))
	assert.True(t, PuedeTransicionar(EstadoSuspendido, EstadoCancelado))

	// CANCELADO is terminal.
	assert.False(t, PuedeTransicionar(EstadoCancelado, EstadoPendiente))
	assert.False(t, PuedeTransicionar(EstadoCancelado, EstadoActivo))
	assert.False(t, PuedeTransicionar(EstadoCancelado, EstadoSuspendido))
	assert.False(t, PuedeTransicionar(EstadoCancelado, EstadoCancelado))

	assert.False(t, PuedeTransicionar(EstadoActivo, EstadoPendiente))
}

func TestEstadoEfectivoEn(t *testing.T) {
	now := time.Now().UTC()
	rec := &PreRegistration{
		EstadoRegistro:   EstadoPendiente,
		FechaVencimiento: now.Add(-24 * time.Hour),
	}
	assert.Equal(t, EfectivoExpirado, rec.EstadoEfectivoEn(now))
}
