package almacen_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barralutz/libredte-api/internal/infrastructure/almacen"
	"github.com/barralutz/libredte-api/pkg/logger"
)

func TestEscribir_CreaDirectoriosYPersiste(t *testing.T) {
	raiz := t.TempDir()
	a := almacen.Nuevo(raiz, logger.Nop())

	ruta, err := a.Escribir(filepath.Join("boletas", "xml", "boleta_100.xml"), []byte("<DTE/>"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(raiz, "docs", "boletas", "xml", "boleta_100.xml"), ruta)
	contenido, err := os.ReadFile(ruta)
	require.NoError(t, err)
	assert.Equal(t, []byte("<DTE/>"), contenido)
}

// Reescribir el mismo nombre reemplaza el contenido sin dejar temporales.
func TestEscribir_Sobrescribe(t *testing.T) {
	a := almacen.Nuevo(t.TempDir(), logger.Nop())

	_, err := a.Escribir("boletas/xml/boleta_100.xml", []byte("v1"))
	require.NoError(t, err)
	ruta, err := a.Escribir("boletas/xml/boleta_100.xml", []byte("v2"))
	require.NoError(t, err)

	contenido, err := os.ReadFile(ruta)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), contenido)

	restos, err := filepath.Glob(ruta + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, restos, "la escritura no deja temporales")
}

func TestRuta_BajoLaRaiz(t *testing.T) {
	raiz := t.TempDir()
	a := almacen.Nuevo(raiz, logger.Nop())
	assert.Equal(t, filepath.Join(raiz, "docs", "facturas", "pdf", "factura_7.pdf"),
		a.Ruta(filepath.Join("facturas", "pdf", "factura_7.pdf")))
}
