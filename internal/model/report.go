package model

// Severity levels used by the analysis report.
const (
	SeverityLow      = "Bajo"
	SeverityMedium   = "Medio"
	SeverityHigh     = "Alto"
	SeverityCritical = "Crítico"
)

// RiskCount aggregates risks per severity.
type RiskCount struct {
	Low      int `json:"bajo"`
	Medium   int `json:"medio"`
	High     int `json:"alto"`
	Critical int `json:"critico"`
}

// Risk is a single finding with its suggested rewrite.
type Risk struct {
	Title           string `json:"titulo"`
	Explanation     string `json:"explicacion"`
	OriginalClause  string `json:"clausula_original"`
	SuggestedClause string `json:"redaccion_alternativa"`
	Severity        string `json:"gravedad"`
}

// Report is the structured audit returned by the analysis service. When
// IsValid is false only ErrorMessage is meaningful.
type Report struct {
	IsValid      bool      `json:"es_valido"`
	ErrorMessage string    `json:"mensaje_error,omitempty"`
	Summary      string    `json:"resumen"`
	Compliance   float64   `json:"score_cumplimiento"`
	RiskCount    RiskCount `json:"conteo_riesgos"`
	Risks        []Risk    `json:"riesgos"`
}

// Recount rebuilds RiskCount from Risks, ignoring unknown severities.
func (r *Report) Recount() {
	var c RiskCount
	for _, risk := range r.Risks {
		switch risk.Severity {
		case SeverityLow:
			c.Low++
		case SeverityMedium:
			c.Medium++
		case SeverityHigh:
			c.High++
		case SeverityCritical, "Critico":
			c.Critical++
		}
	}
	r.RiskCount = c
}
