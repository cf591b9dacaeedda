package sii_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barralutz/libredte-api/pkg/sii"
)

// TestCalcularDV_Vectores valida el módulo 11 contra dígitos verificadores
// conocidos, incluyendo los RUT institucionales del SII y el receptor
// genérico de boletas.
func TestCalcularDV_Vectores(t *testing.T) {
	casos := []struct {
		cuerpo string
		dv     byte
	}{
		{"60803000", 'K'}, // SII
		{"66666666", '6'}, // receptor genérico
		{"12345678", '5'},
		{"11111111", '1'},
	}
	for _, c := range casos {
		dv, err := sii.CalcularDV(c.cuerpo)
		require.NoError(t, err, "cuerpo %s", c.cuerpo)
		assert.Equal(t, c.dv, dv, "dígito verificador de %s", c.cuerpo)
	}
}

func TestValidarRut_Correctos(t *testing.T) {
	for _, rut := range []string{"60803000-K", "60803000-k", "66666666-6", "12.345.678-5", " 11111111-1 "} {
		assert.NoError(t, sii.ValidarRut(rut), "el RUT %s debe validar", rut)
	}
}

func TestValidarRut_Incorrectos(t *testing.T) {
	casos := []struct {
		rut    string
		motivo string
	}{
		{"12345678-4", "dígito verificador equivocado"},
		{"12345678", "sin guión"},
		{"-5", "sin cuerpo"},
		{"1234A678-5", "cuerpo no numérico"},
		{"12345678-KK", "dígito verificador de dos caracteres"},
		{"", "vacío"},
	}
	for _, c := range casos {
		assert.Error(t, sii.ValidarRut(c.rut), "el RUT %q no debe validar (%s)", c.rut, c.motivo)
	}
}

// TestNombreTipo cubre los códigos del catálogo y el desconocido.
func TestNombreTipo(t *testing.T) {
	assert.Equal(t, "BOLETA ELECTRÓNICA", sii.NombreTipo(sii.TipoBoleta))
	assert.Equal(t, "FACTURA ELECTRÓNICA", sii.NombreTipo(sii.TipoFactura))
	assert.Equal(t, "NOTA DE CRÉDITO ELECTRÓNICA", sii.NombreTipo(sii.TipoNotaCredito))
	assert.Contains(t, sii.NombreTipo(999), "999", "un tipo desconocido conserva su código")
}

func TestCodRefValido(t *testing.T) {
	for cod := 1; cod <= 3; cod++ {
		assert.True(t, sii.CodRefValido(cod))
	}
	assert.False(t, sii.CodRefValido(0))
	assert.False(t, sii.CodRefValido(4))
}
