package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pdfutil "github.com/nexusai/auditoria/internal/pdf"
)

// User facing messages.
const (
	msgMissingFlowConfig = "Variables FLOW_API_KEY, FLOW_SECRET_KEY o la URL base no configuradas correctamente."
	msgMissingFlowKeys   = "Claves de API no configuradas."
	msgInternal          = "Internal server error"
	msgNoToken           = "no token"
	msgTokenMissing      = "Token no proporcionado"
	msgNotPaid           = "El pago no fue completado. Estado: "
	msgDocumentNotFound  = "Documento no encontrado. Debido a las políticas de seguridad de la sesión, por favor intenta subir el archivo nuevamente."
	msgDeliveryFailed    = "Error interno al procesar la auditoría: "
	msgPreviewFailed     = "Error al analizar el documento: "
	msgInvalidRequest    = "Solicitud inválida."
	msgRateLimited       = "Demasiadas solicitudes. Intenta nuevamente en unos minutos."
)

// uploadRequest is the JSON body sent by the browser for both the paid
// checkout and the free preview.
type uploadRequest struct {
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimeType"`
	FileName   string `json:"fileName"`
	Email      string `json:"email"`
}

// uploadError is a validation failure reported to the client as 400.
type uploadError struct {
	msg string
}

func (e *uploadError) Error() string { return e.msg }

func invalidUpload(format string, args ...any) error {
	return &uploadError{msg: fmt.Sprintf(format, args...)}
}

// maxBodyBytes bounds the JSON body: base64 inflates by 4/3, plus room for
// the remaining fields.
func (s *Server) maxBodyBytes() int64 {
	return s.cfg.MaxFileSize/3*4 + 8<<10
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalidUpload("El documento excede el tamaño máximo permitido.")
		}
		return invalidUpload(msgInvalidRequest)
	}
	return nil
}

// normalize strips an optional data URL prefix, checks the declared type and
// size, and makes sure PDFs can actually be opened.
func (s *Server) normalize(req *uploadRequest) error {
	data := strings.TrimSpace(req.Base64Data)
	if strings.HasPrefix(data, "data:") {
		if _, payload, ok := strings.Cut(data, ","); ok {
			data = payload
		}
	}
	if data == "" {
		return invalidUpload("El documento está vacío.")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return invalidUpload("El documento no es un base64 válido.")
	}
	if len(raw) == 0 {
		return invalidUpload("El documento está vacío.")
	}
	if int64(len(raw)) > s.cfg.MaxFileSize {
		return invalidUpload("El documento excede el tamaño máximo permitido.")
	}
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if !s.cfg.AllowsType(mimeType) {
		return invalidUpload("Tipo de archivo no soportado: %s", req.MimeType)
	}
	if mimeType == "application/pdf" {
		if _, err := pdfutil.Inspect(raw); err != nil {
			return invalidUpload("El PDF no pudo ser leído.")
		}
	}
	req.Base64Data = data
	req.MimeType = mimeType
	return nil
}
