// Package caf implementa la lectura y validación del CAF (Código de
// Autorización de Folios): el permiso que el SII emite para un rango de
// folios de un tipo de documento. El CAF se parsea una vez por petición desde
// los bytes entregados por el llamador y nunca se persiste.
package caf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/barralutz/libredte-api/internal/domain/dte"
)

// CAF autorización de folios parseada. Invariante: todo folio asignado bajo
// esta autorización cumple Desde <= folio <= Hasta.
type CAF struct {
	Tipo        int    // tipo de DTE autorizado (TD)
	Desde       int    // primer folio del rango (RNG/D)
	Hasta       int    // último folio del rango (RNG/H)
	RutEmisor   string // RUT del emisor autorizado (RE)
	RazonSocial string // razón social del emisor (RS)
	FechaAut    string // fecha de autorización (FA)
	IDK         string // identificador de llave del SII

	raw         []byte // bytes originales, tal como llegaron
	elementoCAF string // nodo <CAF>...</CAF> serializado, va dentro del TED
	llavePEM    string // llave privada RSA del CAF (RSASK), usada para firmar el TED
}

// Parse lee un CAF desde sus bytes. Falla con dte.ErrCAFInvalido si los bytes
// están vacíos, no parsean como XML o faltan los campos de rango.
func Parse(raw []byte) (*CAF, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: contenido vacío", dte.ErrCAFInvalido)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: no se pudo parsear el XML: %v", dte.ErrCAFInvalido, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: documento sin raíz", dte.ErrCAFInvalido)
	}

	// El CAF viene como <AUTORIZACION><CAF><DA>...</DA></CAF><RSASK>...</RSASK></AUTORIZACION>,
	// pero algunos emisores entregan el <CAF> directamente como raíz.
	cafEl := root
	if root.Tag != "CAF" {
		cafEl = root.FindElement("CAF")
	}
	if cafEl == nil {
		return nil, fmt.Errorf("%w: no se encontró el elemento CAF", dte.ErrCAFInvalido)
	}

	da := cafEl.FindElement("DA")
	if da == nil {
		return nil, fmt.Errorf("%w: falta el bloque DA", dte.ErrCAFInvalido)
	}

	tipo, errT := leerEntero(da, "TD")
	desde, errD := leerEntero(da, "RNG/D")
	hasta, errH := leerEntero(da, "RNG/H")
	if errT != nil || errD != nil || errH != nil {
		return nil, fmt.Errorf("%w: faltan tipo o rango de folios (TD/RNG)", dte.ErrCAFInvalido)
	}
	if desde <= 0 || hasta <= 0 || desde > hasta {
		return nil, fmt.Errorf("%w: rango de folios incoherente [%d, %d]", dte.ErrCAFInvalido, desde, hasta)
	}

	c := &CAF{
		Tipo:        tipo,
		Desde:       desde,
		Hasta:       hasta,
		RutEmisor:   textoDe(da, "RE"),
		RazonSocial: textoDe(da, "RS"),
		FechaAut:    textoDe(da, "FA"),
		IDK:         textoDe(da, "IDK"),
		raw:         raw,
	}

	// Serializar el nodo CAF completo: se incrusta tal cual dentro del TED.
	cafDoc := etree.NewDocument()
	cafDoc.SetRoot(cafEl.Copy())
	if s, err := cafDoc.WriteToString(); err == nil {
		c.elementoCAF = strings.TrimSpace(s)
	}

	if rsask := root.FindElement("RSASK"); rsask != nil {
		c.llavePEM = strings.TrimSpace(rsask.Text())
	}

	return c, nil
}

// Validar verifica que el folio esté dentro del rango autorizado. Debe
// ejecutarse antes de cualquier intento de timbraje: timbrar con un folio
// fuera de rango es un error de programación que este componente previene.
func (c *CAF) Validar(folio int) error {
	if folio < c.Desde || folio > c.Hasta {
		return fmt.Errorf("%w: el folio solicitado %d está fuera del rango del CAF (%d-%d)",
			dte.ErrFolioFueraDeRango, folio, c.Desde, c.Hasta)
	}
	return nil
}

// ElementoCAF devuelve el nodo <CAF>...</CAF> serializado, listo para
// incrustarse dentro del TED del documento.
func (c *CAF) ElementoCAF() string { return c.elementoCAF }

// LlavePrivadaPEM devuelve la llave privada RSA del CAF (bloque RSASK), con la
// que se firma el TED. Puede ser vacía si el CAF no la trae.
func (c *CAF) LlavePrivadaPEM() string { return c.llavePEM }

// Raw devuelve los bytes originales del CAF.
func (c *CAF) Raw() []byte { return c.raw }

func leerEntero(el *etree.Element, path string) (int, error) {
	s := textoDe(el, path)
	if s == "" {
		return 0, fmt.Errorf("elemento %s vacío", path)
	}
	return strconv.Atoi(s)
}

func textoDe(el *etree.Element, path string) string {
	if e := el.FindElement(path); e != nil {
		return strings.TrimSpace(e.Text())
	}
	return ""
}
