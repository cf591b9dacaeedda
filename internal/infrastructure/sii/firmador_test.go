package sii_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barralutz/libredte-api/internal/domain/caf"
	"github.com/barralutz/libredte-api/internal/domain/dte"
	infrasii "github.com/barralutz/libredte-api/internal/infrastructure/sii"
)

// cafConLlave arma un CAF de boletas cuyo RSASK es una llave RSA real
// generada para el test, para poder verificar la firma del timbre.
func cafConLlave(t *testing.T) (*caf.CAF, *rsa.PrivateKey) {
	t.Helper()

	llave, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	pemLlave := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(llave),
	}))

	xml := `<AUTORIZACION><CAF version="1.0"><DA>` +
		`<RE>76192083-9</RE><RS>EMPRESA DE PRUEBA SPA</RS><TD>39</TD>` +
		`<RNG><D>100</D><H>200</H></RNG><FA>2026-01-15</FA><IDK>100</IDK>` +
		`</DA></CAF><RSASK>` + pemLlave + `</RSASK></AUTORIZACION>`

	autorizacion, err := caf.Parse([]byte(xml))
	require.NoError(t, err)
	return autorizacion, llave
}

func boletaParaTimbrar() *dte.Documento {
	return &dte.Documento{
		Encabezado: dte.Encabezado{
			IdDoc: dte.IdDoc{TipoDTE: 39, Folio: 100, FchEmis: "2026-08-31"},
			Emisor: dte.EmisorDoc{
				RUTEmisor:    "76192083-9",
				RznSocEmisor: "EMPRESA DE PRUEBA SPA",
				GiroEmisor:   "VENTA AL POR MENOR",
				DirOrigen:    "SANTA CRUZ 211",
				CmnaOrigen:   "SANTA CRUZ",
				CiudadOrigen: "SANTA CRUZ",
			},
			Receptor: dte.Receptor{RUTRecep: "66666666-6", RznSocRecep: "SIN DETALLE"},
		},
		Detalle: []dte.Detalle{{NroLinDet: 1, NmbItem: "Pan amasado"}},
	}
}

// TestTimbrar_EstructuraYFirma verifica que el TED contiene los campos del
// DD en el orden del esquema y que la firma FRMT valida contra la llave del
// CAF (RSA-SHA1 sobre el DD aplanado en ISO-8859-1).
func TestTimbrar_EstructuraYFirma(t *testing.T) {
	autorizacion, llave := cafConLlave(t)
	firmador := infrasii.NewFirmadorXML()

	ted, err := firmador.Timbrar(boletaParaTimbrar(), autorizacion)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ted, `<TED version="1.0"><DD>`))
	assert.True(t, strings.HasSuffix(ted, `</FRMT></TED>`))
	for _, campo := range []string{
		"<RE>76192083-9</RE>", "<TD>39</TD>", "<F>100</F>",
		"<FE>2026-08-31</FE>", "<RR>66666666-6</RR>",
		"<IT1>Pan amasado</IT1>", `<CAF version="1.0">`, "<TSTED>",
	} {
		assert.Contains(t, ted, campo)
	}

	// Verificación criptográfica de la firma del timbre.
	inicio := strings.Index(ted, "<DD>")
	fin := strings.Index(ted, "</DD>") + len("</DD>")
	require.True(t, inicio >= 0 && fin > inicio)
	dd, err := infrasii.CodificarLatin1(ted[inicio:fin])
	require.NoError(t, err)

	firmaB64 := entre(t, ted, `<FRMT algoritmo="SHA1withRSA">`, `</FRMT>`)
	firma, err := base64.StdEncoding.DecodeString(firmaB64)
	require.NoError(t, err)

	resumen := sha1.Sum(dd)
	assert.NoError(t, rsa.VerifyPKCS1v15(&llave.PublicKey, crypto.SHA1, resumen[:], firma),
		"la firma del DD debe validar con la llave pública del CAF")
}

// El receptor y el primer ítem se recortan a 40 caracteres en el timbre.
func TestTimbrar_Recorta40(t *testing.T) {
	autorizacion, _ := cafConLlave(t)
	firmador := infrasii.NewFirmadorXML()

	doc := boletaParaTimbrar()
	doc.Encabezado.Receptor.RznSocRecep = strings.Repeat("R", 60)
	doc.Detalle[0].NmbItem = strings.Repeat("I", 60)

	ted, err := firmador.Timbrar(doc, autorizacion)
	require.NoError(t, err)
	assert.Contains(t, ted, "<RSR>"+strings.Repeat("R", 40)+"</RSR>")
	assert.Contains(t, ted, "<IT1>"+strings.Repeat("I", 40)+"</IT1>")
}

// Sin llave privada en el CAF no hay timbre posible.
func TestTimbrar_CAFSinLlave(t *testing.T) {
	sinLlave := `<CAF version="1.0"><DA><RE>1-9</RE><RS>X</RS><TD>39</TD>` +
		`<RNG><D>100</D><H>200</H></RNG><FA>2026-01-15</FA><IDK>100</IDK></DA></CAF>`
	autorizacion, err := caf.Parse([]byte(sinLlave))
	require.NoError(t, err)

	firmador := infrasii.NewFirmadorXML()
	_, err = firmador.Timbrar(boletaParaTimbrar(), autorizacion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llave privada")
}

func entre(t *testing.T, s, desde, hasta string) string {
	t.Helper()
	i := strings.Index(s, desde)
	require.GreaterOrEqual(t, i, 0, "no se encontró %q", desde)
	resto := s[i+len(desde):]
	j := strings.Index(resto, hasta)
	require.GreaterOrEqual(t, j, 0, "no se encontró %q", hasta)
	return resto[:j]
}
