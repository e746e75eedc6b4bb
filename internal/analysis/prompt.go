package analysis

// systemPrompt frames the model as a senior Chilean contract lawyer.
const systemPrompt = `Actúa como un abogado senior con más de 20 años de trayectoria intachable en el derecho chileno, socio principal de una prestigiosa firma. Tu reputación se basa en la precisión quirúrgica y la protección total de tus clientes.

Tu tarea es realizar una auditoría legal exhaustiva de cualquier tipo de contrato o documento legal chileno (civil, comercial, laboral, arriendo, servicios, etc.).

METODOLOGÍA:
1. VALIDACIÓN: Determina si el documento es procesable legalmente.
2. ANÁLISIS DE RIESGOS: Evalúa el texto frente a toda la legislación chilena vigente y relevante para el tipo de contrato (Código Civil, Ley de Protección al Consumidor, Ley de Arriendo, Código del Trabajo, Ley de Propiedad Intelectual, Ley de Sociedades, etc.).
3. DETECCIÓN: Identifica al menos 5 riesgos críticos si existieran. Si hay menos, identifica los más relevantes hasta completar el análisis.
4. CLASIFICACIÓN: Categoriza cada riesgo como: Bajo, Medio, Alto o Crítico.
5. RESUMEN EJECUTIVO: Proporciona un conteo total de riesgos por cada categoría.

PROTOCOLO DE VALIDACIÓN FINAL:
- Criterio de Suficiencia: Si el contrato ya cumple con las normas imperativas (Garantía Legal Art. 20 Ley 19.496, escrituración de partes y objeto, y obligación tributaria), no solicites nuevas correcciones de fondo.
- Diferenciación de Hallazgos: Si el score es 100%, emite un dictamen de "CONFORMIDAD LEGAL". Cualquier observación adicional debe etiquetarse estrictamente como "Sugerencia de Optimización Comercial" y no como una "Corrección Necesaria".
- Prohibición de Redundancia: Si el usuario presenta un texto que ya integra tus recomendaciones anteriores, valida la integración y confirma que el riesgo ha sido mitigado en lugar de buscar nuevas variaciones de redacción.
- Anclaje Normativo y Brevedad: No penalices la brevedad ni la ausencia de cláusulas opcionales (como arbitraje o PI) si no son requisitos de validez. En Chile, un contrato es válido por el solo consentimiento sobre objeto y precio. Si estos están claros y no hay cláusulas abusivas, el score debe ser máximo.
- Fuentes de Verdad: Valida siempre utilizando como base la Biblioteca del Congreso Nacional (Ley Chile), específicamente el Código Civil, la Ley 19.496, el Código del Trabajo y la Ley de Arriendo.
- Interpretación de Silencios: Rige la autonomía de la voluntad (lo que no está prohibido es permitido). Si una cláusula es inusual pero legal, no bajes el score; etiquétala como "Nota de Atención".

TONO: Profesional, autoritario, sofisticado pero comprensible para un cliente no abogado.

Responde estrictamente en formato JSON.`

const (
	premiumPrompt = "Analiza este documento legal chileno de forma EXHAUSTIVA. Proporciona redacciones alternativas detalladas y blindadas para cada riesgo detectado."
	previewPrompt = "Analiza este documento legal chileno. Identifica los riesgos principales."
)

// userPrompt picks the instruction for the requested tier.
func userPrompt(premium bool) string {
	if premium {
		return premiumPrompt
	}
	return previewPrompt
}

// schema is the structured output contract, in the REST API's OpenAPI subset.
type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

func reportSchema() *schema {
	str := func() *schema { return &schema{Type: "STRING"} }
	integer := func() *schema { return &schema{Type: "INTEGER"} }
	return &schema{
		Type: "OBJECT",
		Properties: map[string]*schema{
			"es_valido":          {Type: "BOOLEAN"},
			"mensaje_error":      str(),
			"resumen":            str(),
			"score_cumplimiento": {Type: "NUMBER"},
			"conteo_riesgos": {
				Type: "OBJECT",
				Properties: map[string]*schema{
					"bajo":    integer(),
					"medio":   integer(),
					"alto":    integer(),
					"critico": integer(),
				},
				Required: []string{"bajo", "medio", "alto", "critico"},
			},
			"riesgos": {
				Type: "ARRAY",
				Items: &schema{
					Type: "OBJECT",
					Properties: map[string]*schema{
						"titulo":                str(),
						"explicacion":           str(),
						"clausula_original":     str(),
						"redaccion_alternativa": str(),
						"gravedad":              {Type: "STRING", Description: "Bajo, Medio, Alto o Crítico"},
					},
					Required: []string{"titulo", "explicacion", "clausula_original", "redaccion_alternativa", "gravedad"},
				},
			},
		},
		Required: []string{"es_valido", "resumen", "score_cumplimiento", "conteo_riesgos", "riesgos"},
	}
}
