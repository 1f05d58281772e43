package errors

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe el envelope {code, message, detail} con el status del error.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// WriteJSON serializa v con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// MaxBodyBytes acota el body que ReadJSON acepta.
const MaxBodyBytes = 64 << 10

// ReadJSON decodifica el body en dst. Un body vacío o inválido es ErrInvalidJSON.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) *AppError {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return ErrInvalidJSON.WithDetail("empty body")
		}
		return ErrInvalidJSON.WithCause(err)
	}
	return nil
}
