package fiscal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Alícuota única de IVA (21%). El WS identifica esta alícuota con el código 5.
// No hay soporte multi-alícuota; ver comentario en TaxRateID.
var taxRate = decimal.NewFromFloat(0.21)

// TaxRateID es el identificador de la alícuota 21% en la tabla de ARCA.
const TaxRateID = 5

// Classification es el resultado de clasificar al receptor: tipo de
// comprobante y si corresponde la exención de IVA.
type Classification struct {
	DocumentType DocumentType
	Exempt       bool
	Description  string
}

// Rate devuelve la alícuota aplicable (cero si el receptor está exento).
func (c Classification) Rate() decimal.Decimal {
	if c.Exempt {
		return decimal.Zero
	}
	return taxRate
}

// Classify determina el tipo de comprobante según la condición fiscal del
// receptor. La comparación es case-insensitive. Sin CUIT o como consumidor
// final siempre corresponde Factura C.
func Classify(buyer Buyer) Classification {
	category := strings.ToUpper(strings.TrimSpace(buyer.FiscalCategory))

	if buyer.digits() == "" || category == "CF" || category == "CONSUMIDOR_FINAL" {
		return Classification{DocumentType: DocumentTypeC, Description: "Factura C"}
	}

	switch category {
	case "RI", "RESPONSABLE_INSCRIPTO":
		return Classification{DocumentType: DocumentTypeA, Description: "Factura A"}
	case "EX", "EXENTO":
		return Classification{DocumentType: DocumentTypeA, Exempt: true, Description: "Factura A (Exento)"}
	case "MONOTRIBUTO":
		return Classification{DocumentType: DocumentTypeB, Description: "Factura B"}
	default:
		// Condición desconocida: Factura C es el default seguro.
		return Classification{DocumentType: DocumentTypeC, Description: "Factura C"}
	}
}

// ComputeTotals calcula neto, IVA y total del comprobante.
//
// Tipo A (IVA discriminado): neto = Σ precioNeto×cantidad; si una línea no
// trae precio neto se deriva como bruto/(1+alícuota). IVA = neto×alícuota.
//
// Tipo B/C (IVA incluido): total = Σ precioBruto×cantidad;
// neto = total/(1+alícuota); IVA = total − neto.
//
// Los montos finales se redondean a 2 decimales con redondeo bancario
// (half-to-even); los parciales por línea no se redondean. ARCA valida
// total = neto + IVA, por lo que el IVA/total se deriva de los montos ya
// redondeados para que la igualdad sea exacta.
func ComputeTotals(cls Classification, lines []LineItem) TaxBreakdown {
	one := decimal.NewFromInt(1)
	rate := cls.Rate()

	if cls.DocumentType.TaxDiscriminated() {
		net := decimal.Zero
		for _, line := range lines {
			unit := line.UnitPriceNet
			if unit.IsZero() && !line.UnitPriceGross.IsZero() {
				unit = line.UnitPriceGross.Div(one.Add(rate))
			}
			net = net.Add(unit.Mul(line.Quantity))
		}
		net = net.RoundBank(2)
		tax := net.Mul(rate).RoundBank(2)
		return TaxBreakdown{
			DocumentType: cls.DocumentType,
			Exempt:       cls.Exempt,
			Net:          net,
			TaxAmount:    tax,
			Gross:        net.Add(tax),
		}
	}

	gross := decimal.Zero
	for _, line := range lines {
		unit := line.UnitPriceGross
		if unit.IsZero() && !line.UnitPriceNet.IsZero() {
			unit = line.UnitPriceNet.Mul(one.Add(rate))
		}
		gross = gross.Add(unit.Mul(line.Quantity))
	}
	gross = gross.RoundBank(2)
	net := gross.Div(one.Add(rate)).RoundBank(2)
	return TaxBreakdown{
		DocumentType: cls.DocumentType,
		Net:          net,
		TaxAmount:    gross.Sub(net),
		Gross:        gross,
	}
}
