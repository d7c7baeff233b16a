// Package symbols holds the static CAC40 universe: company display names
// mapped to their Euronext Paris ticker symbols.
package symbols

// Shares maps a company name to its ticker. Loaded once, never mutated.
var Shares = map[string]string{
	"Accor":               "AC.PA",
	"Air Liquide":         "AI.PA",
	"Airbus":              "AIR.PA",
	"ArcelorMittal":       "MT.AS",
	"Axa":                 "CS.PA",
	"BNP Paribas":         "BNP.PA",
	"Bouygues":            "EN.PA",
	"Capgemini":           "CAP.PA",
	"Carrefour":           "CA.PA",
	"Credit Agricole":     "ACA.PA",
	"Danone":              "BN.PA",
	"Dassault Systemes":   "DSY.PA",
	"Edenred":             "EDEN.PA",
	"Engie":               "ENGI.PA",
	"EssilorLuxottica":    "EL.PA",
	"Eurofins Scientific": "ERF.PA",
	"Hermes":              "RMS.PA",
	"Kering":              "KER.PA",
	"Legrand":             "LR.PA",
	"L'Oreal":             "OR.PA",
	"LVMH":                "MC.PA",
	"Michelin":            "ML.PA",
	"Orange":              "ORA.PA",
	"Pernod Ricard":       "RI.PA",
	"Publicis":            "PUB.PA",
	"Renault":             "RNO.PA",
	"Safran":              "SAF.PA",
	"Saint-Gobain":        "SGO.PA",
	"Sanofi":              "SAN.PA",
	"Schneider Electric":  "SU.PA",
	"Societe Generale":    "GLE.PA",
	"Stellantis":          "STLAP.PA",
	"STMicroelectronics":  "STMPA.PA",
	"Teleperformance":     "TEP.PA",
	"Thales":              "HO.PA",
	"TotalEnergies":       "TTE.PA",
	"Unibail-Rodamco":     "URW.PA",
	"Veolia":              "VIE.PA",
	"Vinci":               "DG.PA",
	"Vivendi":             "VIV.PA",
}

// NameOf returns the display name for a ticker, false when the ticker is
// not part of the universe.
func NameOf(symbol string) (string, bool) {
	for name, s := range Shares {
		if s == symbol {
			return name, true
		}
	}
	return "", false
}

// Tickers returns every ticker in the universe.
func Tickers() []string {
	out := make([]string, 0, len(Shares))
	for _, s := range Shares {
		out = append(out, s)
	}
	return out
}
