package sii

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
	"golang.org/x/crypto/pkcs12"

	"github.com/barralutz/libredte-api/internal/domain/caf"
	"github.com/barralutz/libredte-api/internal/domain/dte"
)

// Identidad es una identidad de firma cargada desde un certificado digital.
type Identidad interface {
	// ID retorna el RUT del titular del certificado.
	ID() string
}

// Firmador es el puerto del motor criptográfico: carga de certificados,
// timbraje electrónico y firma XML de documentos, semillas y sobres.
type Firmador interface {
	Cargar(certificado []byte, password string) (Identidad, error)
	Timbrar(doc *dte.Documento, autorizacion *caf.CAF) (string, error)
	Firmar(doc *dte.Documento, ted string, id Identidad) ([]byte, error)
	FirmarSemilla(semilla string, id Identidad) ([]byte, error)
	FirmarSobre(setDTE []byte, referencia string, id Identidad) (string, error)
}

// ── Implementación ────────────────────────────────────────────────────────────

// FirmadorXML implementa Firmador con certificados PKCS#12 y firmas
// RSA-SHA1 según los esquemas del SII.
type FirmadorXML struct {
	ahora func() time.Time
}

var _ Firmador = (*FirmadorXML)(nil)

func NewFirmadorXML() *FirmadorXML {
	return &FirmadorXML{ahora: time.Now}
}

type identidadCertificado struct {
	certificado *x509.Certificate
	llave       *rsa.PrivateKey
	rut         string
}

func (i *identidadCertificado) ID() string { return i.rut }

// Cargar descifra el certificado .p12 y extrae el RUT del titular.
func (f *FirmadorXML) Cargar(certificado []byte, password string) (Identidad, error) {
	llave, cert, err := pkcs12.Decode(certificado, password)
	if err != nil {
		return nil, fmt.Errorf("no fue posible descifrar el certificado: %w", err)
	}
	llaveRSA, ok := llave.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("el certificado no contiene una llave privada RSA")
	}
	rut := rutDeCertificado(cert)
	if rut == "" {
		return nil, fmt.Errorf("el certificado no contiene el RUT del titular")
	}
	return &identidadCertificado{certificado: cert, llave: llaveRSA, rut: rut}, nil
}

// rutDeCertificado busca el RUT del titular en el serialNumber del sujeto y,
// en su defecto, en la extensión subjectAltName que usa el SII.
func rutDeCertificado(cert *x509.Certificate) string {
	if sn := strings.TrimSpace(cert.Subject.SerialNumber); sn != "" {
		return strings.ToUpper(sn)
	}
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal([]int{2, 5, 29, 17}) {
			continue
		}
		// El RUT viaja como otherName dentro de la extensión; se rescata
		// con una búsqueda directa del patrón numérico-dígito verificador.
		if rut := extraerRut(string(ext.Value)); rut != "" {
			return rut
		}
	}
	return ""
}

func extraerRut(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			continue
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j-i >= 7 && j < len(s)-1 && s[j] == '-' {
			dv := s[j+1]
			if (dv >= '0' && dv <= '9') || dv == 'K' || dv == 'k' {
				return strings.ToUpper(s[i : j+2])
			}
		}
		i = j
	}
	return ""
}

// ── Timbraje ─────────────────────────────────────────────────────────────────

// Timbrar construye el TED del documento y firma el nodo DD con la llave
// privada incluida en la autorización de folios.
func (f *FirmadorXML) Timbrar(doc *dte.Documento, autorizacion *caf.CAF) (string, error) {
	if autorizacion == nil {
		return "", fmt.Errorf("no hay autorización de folios")
	}
	llave, err := llaveDesdePEM([]byte(autorizacion.LlavePrivadaPEM()))
	if err != nil {
		return "", err
	}

	dd, err := f.construirDD(doc, autorizacion)
	if err != nil {
		return "", err
	}
	plano, err := CodificarLatin1(dd)
	if err != nil {
		return "", err
	}
	firma, err := firmarSHA1(llave, plano)
	if err != nil {
		return "", fmt.Errorf("no fue posible firmar el timbre: %w", err)
	}

	ted := `<TED version="1.0">` + dd +
		`<FRMT algoritmo="SHA1withRSA">` + firma + `</FRMT></TED>`
	return ted, nil
}

func (f *FirmadorXML) construirDD(doc *dte.Documento, autorizacion *caf.CAF) (string, error) {
	enc := doc.Encabezado
	dd := etree.NewElement("DD")
	texto(dd, "RE", enc.Emisor.RUTEmisor)
	texto(dd, "TD", strconv.Itoa(doc.Tipo()))
	texto(dd, "F", strconv.Itoa(doc.Folio()))
	texto(dd, "FE", enc.IdDoc.FchEmis)
	texto(dd, "RR", enc.Receptor.RUTRecep)
	texto(dd, "RSR", recortar(enc.Receptor.RznSocRecep, 40))
	texto(dd, "MNT", monto(enc.Totales.MntTotal))
	if len(doc.Detalle) == 0 {
		return "", fmt.Errorf("el documento no tiene detalle")
	}
	texto(dd, "IT1", recortar(doc.Detalle[0].NmbItem, 40))
	cafNodo := etree.NewDocument()
	if err := cafNodo.ReadFromString(autorizacion.ElementoCAF()); err != nil || cafNodo.Root() == nil {
		return "", fmt.Errorf("el CAF de la autorización no es XML válido")
	}
	dd.AddChild(cafNodo.Root().Copy())
	texto(dd, "TSTED", f.ahora().Format("2006-01-02T15:04:05"))

	serial := etree.NewDocument()
	serial.SetRoot(dd)
	out, err := serial.WriteToString()
	if err != nil {
		return "", fmt.Errorf("no fue posible serializar el timbre: %w", err)
	}
	return out, nil
}

func recortar(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func llaveDesdePEM(raw []byte) (*rsa.PrivateKey, error) {
	bloque, _ := pem.Decode(raw)
	if bloque == nil {
		return nil, fmt.Errorf("la llave privada de la autorización no es PEM válido")
	}
	if llave, err := x509.ParsePKCS1PrivateKey(bloque.Bytes); err == nil {
		return llave, nil
	}
	generica, err := x509.ParsePKCS8PrivateKey(bloque.Bytes)
	if err != nil {
		return nil, fmt.Errorf("no fue posible interpretar la llave privada: %w", err)
	}
	llave, ok := generica.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("la llave privada de la autorización no es RSA")
	}
	return llave, nil
}

// ── Firma XML ────────────────────────────────────────────────────────────────

// Firmar arma el XML completo del DTE (documento + TED + TmstFirma) y lo
// firma con XML-DSig referenciando el nodo Documento.
func (f *FirmadorXML) Firmar(doc *dte.Documento, ted string, id Identidad) ([]byte, error) {
	ident, err := identidadInterna(id)
	if err != nil {
		return nil, err
	}

	x, err := ConstruirXMLDocumento(doc)
	if err != nil {
		return nil, err
	}
	documento := x.Root().SelectElement("Documento")

	tedDoc := etree.NewDocument()
	if err := tedDoc.ReadFromString(ted); err != nil {
		return nil, fmt.Errorf("el TED no es XML válido: %w", err)
	}
	documento.AddChild(tedDoc.Root().Copy())
	texto(documento, "TmstFirma", f.ahora().Format("2006-01-02T15:04:05"))

	serialDocumento := etree.NewDocument()
	serialDocumento.SetRoot(documento.Copy())
	nodo, err := serialDocumento.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("no fue posible serializar el documento: %w", err)
	}

	firma, err := firmarNodo("#"+IDDocumento(doc), []byte(nodo), ident)
	if err != nil {
		return nil, err
	}

	firmaDoc := etree.NewDocument()
	if err := firmaDoc.ReadFromString(firma); err != nil {
		return nil, fmt.Errorf("la firma generada no es XML válido: %w", err)
	}
	x.Root().AddChild(firmaDoc.Root().Copy())

	salida, err := x.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("no fue posible serializar el DTE: %w", err)
	}
	return CodificarLatin1(salida)
}

// FirmarSemilla firma la semilla de autenticación para solicitar el token.
func (f *FirmadorXML) FirmarSemilla(semilla string, id Identidad) ([]byte, error) {
	ident, err := identidadInterna(id)
	if err != nil {
		return nil, err
	}
	item := "<item><Semilla>" + semilla + "</Semilla></item>"
	firma, err := firmarNodo("", []byte("<getToken>"+item+"</getToken>"), ident)
	if err != nil {
		return nil, err
	}
	peticion := `<?xml version="1.0" encoding="UTF-8"?><getToken>` + item + firma + `</getToken>`
	return []byte(peticion), nil
}

// FirmarSobre firma el SetDTE del sobre y retorna el nodo Signature listo
// para insertarse antes del cierre del sobre.
func (f *FirmadorXML) FirmarSobre(setDTE []byte, referencia string, id Identidad) (string, error) {
	ident, err := identidadInterna(id)
	if err != nil {
		return "", err
	}
	return firmarNodo("#"+referencia, setDTE, ident)
}

func identidadInterna(id Identidad) (*identidadCertificado, error) {
	ident, ok := id.(*identidadCertificado)
	if !ok || ident.llave == nil {
		return nil, fmt.Errorf("la identidad de firma no proviene de un certificado cargado")
	}
	return ident, nil
}

// firmarNodo construye un bloque Signature XML-DSig enveloped sobre el nodo
// referenciado, con digest SHA1 y firma RSA-SHA1.
func firmarNodo(uri string, nodo []byte, ident *identidadCertificado) (string, error) {
	canonico, err := c14n.Canonicalize(xml.NewDecoder(bytes.NewReader(nodo)))
	if err != nil {
		return "", fmt.Errorf("no fue posible canonicalizar el nodo a firmar: %w", err)
	}
	digest := sha1.Sum(canonico)

	signedInfo := `<SignedInfo xmlns="http://www.w3.org/2000/09/xmldsig#">` +
		`<CanonicalizationMethod Algorithm="http://www.w3.org/TR/2001/REC-xml-c14n-20010315"/>` +
		`<SignatureMethod Algorithm="http://www.w3.org/2000/09/xmldsig#rsa-sha1"/>` +
		`<Reference URI="` + uri + `">` +
		`<Transforms><Transform Algorithm="http://www.w3.org/TR/2001/REC-xml-c14n-20010315"/></Transforms>` +
		`<DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/>` +
		`<DigestValue>` + base64.StdEncoding.EncodeToString(digest[:]) + `</DigestValue>` +
		`</Reference></SignedInfo>`

	canonicoSI, err := c14n.Canonicalize(xml.NewDecoder(strings.NewReader(signedInfo)))
	if err != nil {
		return "", fmt.Errorf("no fue posible canonicalizar SignedInfo: %w", err)
	}
	valor, err := firmarSHA1(ident.llave, canonicoSI)
	if err != nil {
		return "", fmt.Errorf("no fue posible firmar el nodo: %w", err)
	}

	firma := `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">` +
		signedInfoSinNS(signedInfo) +
		`<SignatureValue>` + valor + `</SignatureValue>` +
		`<KeyInfo><KeyValue><RSAKeyValue>` +
		`<Modulus>` + base64.StdEncoding.EncodeToString(ident.llave.N.Bytes()) + `</Modulus>` +
		`<Exponent>` + base64.StdEncoding.EncodeToString(exponente(ident.llave)) + `</Exponent>` +
		`</RSAKeyValue></KeyValue>` +
		`<X509Data><X509Certificate>` + base64.StdEncoding.EncodeToString(ident.certificado.Raw) + `</X509Certificate></X509Data>` +
		`</KeyInfo></Signature>`
	return firma, nil
}

// signedInfoSinNS quita la declaración xmlns del SignedInfo embebido: dentro
// de Signature hereda el espacio de nombres del padre.
func signedInfoSinNS(signedInfo string) string {
	return strings.Replace(signedInfo, ` xmlns="http://www.w3.org/2000/09/xmldsig#"`, "", 1)
}

func exponente(llave *rsa.PrivateKey) []byte {
	return big.NewInt(int64(llave.PublicKey.E)).Bytes()
}

func firmarSHA1(llave *rsa.PrivateKey, datos []byte) (string, error) {
	resumen := sha1.Sum(datos)
	firma, err := rsa.SignPKCS1v15(rand.Reader, llave, crypto.SHA1, resumen[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(firma), nil
}
