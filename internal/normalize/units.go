package normalize

import (
	"strings"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// Canonical unit codes.
const (
	UnitTCO2e   = "tCO2e"
	UnitMWh     = "MWh"
	UnitM3      = "m3"
	UnitTonnes  = "t"
	UnitPercent = "%"
	UnitCount   = "count"
	UnitUSD     = "USD"
)

type unitDef struct {
	canonical string
	factor    float64 // multiply a value in this unit to get the canonical unit
}

// caseUnits is consulted before the case-folded table for spellings whose
// meaning depends on case (Mt is megatonnes, mt is metric tonnes).
var caseUnits = map[string]unitDef{
	"MtCO2e": {UnitTCO2e, 1e6},
	"MtCO2":  {UnitTCO2e, 1e6},
	"Mt":     {UnitTonnes, 1e6},
	"mL":     {UnitM3, 1e-6},
}

var units = map[string]unitDef{}

func init() {
	add := func(canonical string, factor float64, keys ...string) {
		for _, k := range keys {
			units[k] = unitDef{canonical: canonical, factor: factor}
		}
	}

	add(UnitTCO2e, 1,
		"tco2e", "tco2", "tco2eq", "tco2equivalent", "tonnesco2e", "tonnesco2", "tonneco2e",
		"tonsco2e", "tonco2e", "metrictonsco2e", "metrictonnesco2e", "mtco2e", "mtco2",
		"tonnesofco2e", "tonnesco2equivalent", "tonnesofco2equivalent", "metrictonsofco2e",
		"tco2eqv", "tonnesco2eq")
	add(UnitTCO2e, 1000,
		"ktco2e", "ktco2", "kilotonnesco2e", "kilotonsco2e", "thousandtonnesco2e",
		"thousandtco2e", "000tco2e")
	add(UnitTCO2e, 1e6, "mmtco2e", "milliontonnesco2e", "milliontco2e", "milliontonsco2e")
	add(UnitTCO2e, 0.001, "kgco2e", "kgco2", "kilogramsco2e")

	add(UnitMWh, 1, "mwh", "megawatthours", "megawatthour")
	add(UnitMWh, 0.001, "kwh", "kilowatthours", "kilowatthour")
	add(UnitMWh, 1000, "gwh", "gigawatthours", "gigawatthour")
	add(UnitMWh, 1e6, "twh", "terawatthours", "terawatthour")
	add(UnitMWh, 1/3.6, "gj", "gigajoules", "gigajoule")
	add(UnitMWh, 1000/3.6, "tj", "terajoules", "terajoule")
	add(UnitMWh, 1e6/3.6, "pj", "petajoules", "petajoule")
	add(UnitMWh, 1/3600.0, "mj", "megajoules", "megajoule")

	add(UnitM3, 1, "m3", "cubicmeters", "cubicmetres", "cubicmeter", "cubicmetre", "kl",
		"kiloliters", "kilolitres", "kiloliter", "kilolitre")
	add(UnitM3, 1000, "ml", "megaliters", "megalitres", "megaliter", "megalitre",
		"thousandm3", "thousandcubicmeters", "thousandcubicmetres")
	add(UnitM3, 1e6, "millionm3", "millioncubicmeters", "millioncubicmetres", "gl", "gigaliters", "gigalitres")
	add(UnitM3, 0.001, "l", "liters", "litres", "liter", "litre")
	add(UnitM3, 0.00378541, "gal", "gallons", "usgallons", "gallon")

	add(UnitTonnes, 1, "t", "tonnes", "tonne", "tons", "ton", "metrictons", "metrictonnes", "metricton")
	add(UnitTonnes, 0.001, "kg", "kilograms", "kilogram", "kgs")
	add(UnitTonnes, 1000, "kt", "kilotonnes", "kilotons", "thousandtonnes")
	add(UnitTonnes, 0.000453592, "lb", "lbs", "pounds")

	add(UnitPercent, 1, "%", "percent", "percentage", "pct")

	add(UnitCount, 1, "count", "number", "no", "#", "employees", "people", "persons", "headcount",
		"fte", "ftes", "incidents", "cases", "fatalities", "members", "directors", "sites")

	add(UnitUSD, 1, "usd", "$", "us$", "usdollars", "dollars")
	add(UnitUSD, 1000, "usdthousand", "thousandusd", "$k", "kusd", "usd000", "$000")
	add(UnitUSD, 1e6, "usdmillion", "millionusd", "$m", "$mn", "usdmn", "musd", "usdm", "$million")
	add(UnitUSD, 1e9, "usdbillion", "billionusd", "$bn", "usdbn", "$b", "$billion")
}

// unitCategory maps a canonical unit to the only category it can measure.
var unitCategory = map[string]string{
	UnitTCO2e: metric.GHGEmissions,
	UnitMWh:   metric.Energy,
	UnitM3:    metric.Water,
}

var unitKeyReplacer = strings.NewReplacer(
	"₂", "2", "²", "2", "³", "3",
	" ", "", "\u00a0", "", "-", "", ".", "", "_", "", "(", "", ")", "", ",", "",
)

func unitKey(s string) string {
	return unitKeyReplacer.Replace(strings.TrimSpace(s))
}

// LookupUnit resolves a unit spelling to its canonical unit and scale factor.
func LookupUnit(s string) (canonical string, factor float64, ok bool) {
	if strings.TrimSpace(s) == "" {
		return "", 0, false
	}
	key := unitKey(s)
	if d, ok := caseUnits[key]; ok {
		return d.canonical, d.factor, true
	}
	if d, ok := units[strings.ToLower(key)]; ok {
		return d.canonical, d.factor, true
	}
	return "", 0, false
}

// ToCanonical converts a value in unit to the canonical unit.
func ToCanonical(value float64, unit string) (float64, string, bool) {
	canonical, factor, ok := LookupUnit(unit)
	if !ok {
		return value, unit, false
	}
	return value * factor, canonical, true
}

// FromCanonical converts a canonical-unit value back into unit.
func FromCanonical(value float64, unit string) (float64, bool) {
	_, factor, ok := LookupUnit(unit)
	if !ok || factor == 0 {
		return value, false
	}
	return value / factor, true
}

// CategoryForUnit returns the category a canonical unit implies, if any.
func CategoryForUnit(canonical string) string {
	return unitCategory[canonical]
}
