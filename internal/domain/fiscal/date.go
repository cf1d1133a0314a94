package fiscal

import (
	"fmt"
	"time"
)

// ARCA intercambia fechas como enteros de 8 dígitos AAAAMMDD
// (ej: 20250831). Las horas no participan del formato.

// FormatAuthorityDate codifica una fecha al formato AAAAMMDD del WS.
func FormatAuthorityDate(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// ParseAuthorityDate decodifica una fecha AAAAMMDD del WS a una fecha
// calendario (medianoche, zona local). Falla si el valor no representa
// una fecha válida.
func ParseAuthorityDate(v int) (time.Time, error) {
	if v < 10000101 || v > 99991231 {
		return time.Time{}, fmt.Errorf("fiscal: fecha AAAAMMDD fuera de rango: %d", v)
	}
	year := v / 10000
	month := (v / 100) % 100
	day := v % 100

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// time.Date normaliza valores inválidos (ej: 20250230 → 2 de marzo);
	// si la fecha normalizada no coincide, el valor original era inválido.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("fiscal: fecha AAAAMMDD inválida: %d", v)
	}
	return t, nil
}
