package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App  AppConfig
	HTTP HTTPConfig
	SII  SIIConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SIIConfig configuración para la emisión de DTE ante el SII (Chile).
type SIIConfig struct {
	// Ambiente por defecto cuando la petición no lo indica:
	// "certificacion" (maullin) o "produccion" (palena).
	Ambiente string
	// DatosDir raíz de datos persistentes: los artefactos emitidos (XML, PDF)
	// quedan bajo DatosDir/docs y sus rutas se devuelven al llamador.
	// Vacío = os.TempDir().
	DatosDir string
	// TimeoutSegundos timeout de red para las llamadas al SII.
	TimeoutSegundos int
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, HTTP_PORT, SII_AMBIENTE, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "libredte-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SII: SIIConfig{
			Ambiente:        getString(v, "SII_AMBIENTE", "certificacion"),
			DatosDir:        getString(v, "SII_DATA_DIR", ""),
			TimeoutSegundos: getInt(v, "SII_TIMEOUT_SECONDS", 60),
		},
	}

	if cfg.SII.Ambiente != "certificacion" && cfg.SII.Ambiente != "produccion" {
		return nil, fmt.Errorf("config: SII_AMBIENTE desconocido %q (usar 'certificacion' o 'produccion')", cfg.SII.Ambiente)
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
