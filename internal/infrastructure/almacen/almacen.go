// Package almacen persiste los artefactos de una emisión (XML firmado, PDF)
// bajo la raíz de datos. Las rutas devueltas al llamador quedan vigentes
// después de responder: nada las limpia.
package almacen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/barralutz/libredte-api/pkg/logger"
)

// Almacen raíz permanente de artefactos, bajo <raiz>/docs.
type Almacen struct {
	raiz string
	log  *logger.Logger
}

// Nuevo crea el almacén sobre raiz; vacío usa el directorio temporal del
// sistema.
func Nuevo(raiz string, log *logger.Logger) *Almacen {
	if raiz == "" {
		raiz = os.TempDir()
	}
	return &Almacen{raiz: filepath.Join(raiz, "docs"), log: log}
}

// Ruta resuelve un nombre relativo dentro del almacén.
func (a *Almacen) Ruta(nombre string) string {
	return filepath.Join(a.raiz, nombre)
}

// Escribir persiste un artefacto y retorna su ruta final. La escritura pasa
// por un temporal con sufijo único y un rename, así la ruta final nunca
// expone un artefacto a medio escribir.
func (a *Almacen) Escribir(nombre string, contenido []byte) (string, error) {
	ruta := a.Ruta(nombre)
	if err := os.MkdirAll(filepath.Dir(ruta), 0o755); err != nil {
		return "", fmt.Errorf("almacen: crear directorio de %s: %w", nombre, err)
	}
	temporal := ruta + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(temporal, contenido, 0o600); err != nil {
		return "", fmt.Errorf("almacen: escribir %s: %w", nombre, err)
	}
	if err := os.Rename(temporal, ruta); err != nil {
		if rmErr := os.Remove(temporal); rmErr != nil && a.log != nil {
			a.log.Warn().Err(rmErr).Str("archivo", temporal).Msg("no fue posible eliminar el temporal")
		}
		return "", fmt.Errorf("almacen: publicar %s: %w", nombre, err)
	}
	return ruta, nil
}
