package sii

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	siipkg "github.com/barralutz/libredte-api/pkg/sii"
)

// ── Puerto (interfaz) ─────────────────────────────────────────────────────────

// ClienteSII define el puerto de salida hacia los servicios web del SII:
// autenticación por semilla/token y carga de sobres de envío.
// La implementación concreta usa HTTP; para tests se puede inyectar un mock.
type ClienteSII interface {
	// Autenticar obtiene una semilla, la firma y la canjea por un token
	// de sesión.
	Autenticar(ctx context.Context, id Identidad) (string, error)
	// Enviar sube el sobre al SII y retorna el identificador de
	// seguimiento (track id) asignado.
	Enviar(ctx context.Context, rutEnvia, rutEmisor string, sobre []byte, token string) (string, error)
}

// ── Implementación HTTP ───────────────────────────────────────────────────────

const (
	rutaSemilla = "/DTEWS/CrSeed.jws"
	rutaToken   = "/DTEWS/GetTokenFromSeed.jws"
	rutaUpload  = "/cgi_dte/UPL/DTEUpload"

	// El receptor de envíos del SII exige identificarse con un agente conocido.
	agenteUsuario = "Mozilla/4.0 (compatible; PROG 1.0; LibreDTE)"
)

// Estados de rechazo del receptor de envíos.
var estadosUpload = map[string]string{
	"1": "el firmante no tiene permiso para enviar",
	"2": "error en el tamaño del archivo",
	"3": "el archivo llegó cortado",
	"5": "no autenticado",
	"6": "la empresa no está autorizada a enviar",
	"7": "esquema inválido",
	"8": "error en la firma del documento",
	"9": "sistema bloqueado",
}

// ClienteHTTP implementa ClienteSII contra los servicios del ambiente
// configurado (maullin para certificación, palena para producción).
type ClienteHTTP struct {
	base       string
	firmador   Firmador
	httpClient *http.Client
}

var _ ClienteSII = (*ClienteHTTP)(nil)

// NewClienteHTTP construye el cliente para el servidor del ambiente dado.
// El timeout es generoso: la carga de sobres puede tardar varios segundos.
func NewClienteHTTP(servidor string, firmador Firmador, timeout time.Duration) *ClienteHTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClienteHTTP{
		base:       "https://" + servidor + ".sii.cl",
		firmador:   firmador,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClienteHTTPConBase permite apuntar el cliente a una URL arbitraria.
func NewClienteHTTPConBase(base string, firmador Firmador) *ClienteHTTP {
	return &ClienteHTTP{
		base:       strings.TrimSuffix(base, "/"),
		firmador:   firmador,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Autenticar implementa el flujo semilla → firma → token del SII.
func (c *ClienteHTTP) Autenticar(ctx context.Context, id Identidad) (string, error) {
	semilla, err := c.obtenerSemilla(ctx)
	if err != nil {
		return "", err
	}
	peticion, err := c.firmador.FirmarSemilla(semilla, id)
	if err != nil {
		return "", fmt.Errorf("no fue posible firmar la semilla: %w", err)
	}
	return c.canjearToken(ctx, peticion)
}

func (c *ClienteHTTP) obtenerSemilla(ctx context.Context) (string, error) {
	respuesta, err := c.llamadaSOAP(ctx, rutaSemilla, "getSeed", nil)
	if err != nil {
		return "", fmt.Errorf("no fue posible obtener la semilla: %w", err)
	}
	semilla := extraerEntre(respuesta, "<SEMILLA>", "</SEMILLA>")
	if semilla == "" {
		return "", fmt.Errorf("la respuesta del SII no contiene semilla: %s", resumen(respuesta))
	}
	return semilla, nil
}

func (c *ClienteHTTP) canjearToken(ctx context.Context, peticion []byte) (string, error) {
	respuesta, err := c.llamadaSOAP(ctx, rutaToken, "getToken", peticion)
	if err != nil {
		return "", fmt.Errorf("no fue posible canjear el token: %w", err)
	}
	token := extraerEntre(respuesta, "<TOKEN>", "</TOKEN>")
	if token == "" {
		return "", fmt.Errorf("el SII no entregó token: %s", resumen(respuesta))
	}
	return token, nil
}

// llamadaSOAP invoca una operación de los servicios .jws del SII. Estas
// operaciones reciben a lo más un parámetro string (el XML firmado).
func (c *ClienteHTTP) llamadaSOAP(ctx context.Context, ruta, operacion string, parametro []byte) (string, error) {
	var cuerpo strings.Builder
	cuerpo.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	cuerpo.WriteString(`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">`)
	cuerpo.WriteString(`<SOAP-ENV:Body><m:` + operacion + ` xmlns:m="` + c.base + ruta + `">`)
	if parametro != nil {
		cuerpo.WriteString(`<pszXml>` + html.EscapeString(string(parametro)) + `</pszXml>`)
	}
	cuerpo.WriteString(`</m:` + operacion + `></SOAP-ENV:Body></SOAP-ENV:Envelope>`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+ruta,
		strings.NewReader(cuerpo.String()))
	if err != nil {
		return "", fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("timeout o cancelación: %w", ctx.Err())
		}
		return "", fmt.Errorf("llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	crudo, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return "", fmt.Errorf("leer respuesta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("el SII respondió HTTP %d: %s", resp.StatusCode, resumen(string(crudo)))
	}
	// Los .jws devuelven el XML de negocio escapado dentro del envelope SOAP.
	return html.UnescapeString(string(crudo)), nil
}

// ── Carga del sobre ───────────────────────────────────────────────────────────

type recepcionEnvio struct {
	XMLName xml.Name `xml:"RECEPCIONDTE"`
	TrackID string   `xml:"TRACKID"`
	Estado  string   `xml:"STATUS"`
	Detalle string   `xml:"DETAIL"`
}

// Enviar sube el sobre al receptor de envíos del SII como formulario
// multipart autenticado con el token de sesión.
func (c *ClienteHTTP) Enviar(ctx context.Context, rutEnvia, rutEmisor string, sobre []byte, token string) (string, error) {
	rutSender, dvSender, err := partirRutConDV(rutEnvia)
	if err != nil {
		return "", fmt.Errorf("rut de quien envía inválido: %w", err)
	}
	rutCompany, dvCompany, err := partirRutConDV(rutEmisor)
	if err != nil {
		return "", fmt.Errorf("rut del emisor inválido: %w", err)
	}

	var cuerpo bytes.Buffer
	form := multipart.NewWriter(&cuerpo)
	_ = form.WriteField("rutSender", rutSender)
	_ = form.WriteField("dvSender", dvSender)
	_ = form.WriteField("rutCompany", rutCompany)
	_ = form.WriteField("dvCompany", dvCompany)
	parte, err := form.CreateFormFile("archivo", "envio.xml")
	if err != nil {
		return "", fmt.Errorf("armar formulario de envío: %w", err)
	}
	if _, err := parte.Write(sobre); err != nil {
		return "", fmt.Errorf("armar formulario de envío: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("armar formulario de envío: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+rutaUpload, &cuerpo)
	if err != nil {
		return "", fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", agenteUsuario)
	req.Header.Set("Cookie", "TOKEN="+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("timeout o cancelación: %w", ctx.Err())
		}
		return "", fmt.Errorf("llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	crudo, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("leer respuesta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("el receptor de envíos respondió HTTP %d: %s",
			resp.StatusCode, resumen(string(crudo)))
	}

	var recepcion recepcionEnvio
	if err := xml.Unmarshal(crudo, &recepcion); err != nil {
		return "", fmt.Errorf("respuesta de recepción ilegible: %s", resumen(string(crudo)))
	}
	if recepcion.Estado != "0" {
		motivo, conocido := estadosUpload[recepcion.Estado]
		if !conocido {
			motivo = "estado desconocido"
		}
		if recepcion.Detalle != "" {
			motivo += ": " + recepcion.Detalle
		}
		return "", fmt.Errorf("el SII rechazó el envío (estado %s): %s", recepcion.Estado, motivo)
	}
	if recepcion.TrackID == "" {
		return "", fmt.Errorf("el SII aceptó el envío pero no entregó track id")
	}
	return recepcion.TrackID, nil
}

func partirRutConDV(rut string) (string, string, error) {
	if err := siipkg.ValidarRut(rut); err != nil {
		return "", "", err
	}
	partes := strings.SplitN(strings.ToUpper(strings.TrimSpace(rut)), "-", 2)
	return partes[0], partes[1], nil
}

func extraerEntre(s, desde, hasta string) string {
	i := strings.Index(s, desde)
	if i < 0 {
		return ""
	}
	resto := s[i+len(desde):]
	j := strings.Index(resto, hasta)
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(resto[:j])
}

func resumen(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
