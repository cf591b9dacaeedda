package sii

import (
	"fmt"
	"strings"
)

// ValidarRut valida que el RUT (formato "12345678-9", con o sin puntos) tenga
// un dígito verificador correcto según el algoritmo módulo 11 chileno.
// El dígito verificador puede ser 0-9 o K.
func ValidarRut(rut string) error {
	cuerpo, dv, err := partirRut(rut)
	if err != nil {
		return err
	}
	esperado := calcularDV(cuerpo)
	if dv != esperado {
		return fmt.Errorf("sii: dígito verificador del RUT inválido: esperado %c, recibido %c", esperado, dv)
	}
	return nil
}

// CalcularDV calcula el dígito verificador para el cuerpo numérico del RUT.
// Acepta el RUT con o sin puntos; ignora todo lo que siga a un guión.
func CalcularDV(rut string) (byte, error) {
	limpio := strings.ReplaceAll(rut, ".", "")
	if idx := strings.Index(limpio, "-"); idx != -1 {
		limpio = limpio[:idx]
	}
	if limpio == "" {
		return 0, fmt.Errorf("sii: RUT vacío")
	}
	for i := 0; i < len(limpio); i++ {
		if limpio[i] < '0' || limpio[i] > '9' {
			return 0, fmt.Errorf("sii: cuerpo del RUT contiene caracteres no numéricos: %q", rut)
		}
	}
	return calcularDV(limpio), nil
}

// partirRut separa el cuerpo y el dígito verificador. Exige el guión.
func partirRut(rut string) (cuerpo string, dv byte, err error) {
	limpio := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rut), ".", ""))
	idx := strings.LastIndex(limpio, "-")
	if idx == -1 || idx == len(limpio)-1 {
		return "", 0, fmt.Errorf("sii: RUT debe tener formato cuerpo-dv: %q", rut)
	}
	cuerpo, dvs := limpio[:idx], limpio[idx+1:]
	if len(dvs) != 1 || (dvs[0] != 'K' && (dvs[0] < '0' || dvs[0] > '9')) {
		return "", 0, fmt.Errorf("sii: dígito verificador inválido en %q", rut)
	}
	if cuerpo == "" {
		return "", 0, fmt.Errorf("sii: RUT sin cuerpo numérico: %q", rut)
	}
	for i := 0; i < len(cuerpo); i++ {
		if cuerpo[i] < '0' || cuerpo[i] > '9' {
			return "", 0, fmt.Errorf("sii: cuerpo del RUT contiene caracteres no numéricos: %q", rut)
		}
	}
	return cuerpo, dvs[0], nil
}

// calcularDV aplica módulo 11 con pesos cíclicos 2..7 de derecha a izquierda.
func calcularDV(cuerpo string) byte {
	suma, peso := 0, 2
	for i := len(cuerpo) - 1; i >= 0; i-- {
		suma += int(cuerpo[i]-'0') * peso
		peso++
		if peso > 7 {
			peso = 2
		}
	}
	resto := 11 - suma%11
	switch resto {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + resto)
	}
}
