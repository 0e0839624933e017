package utilities

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 256 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes {"status":"success", ...fields}.
func Success(w http.ResponseWriter, status int, fields map[string]any) {
	out := map[string]any{"status": "success"}
	for k, v := range fields {
		out[k] = v
	}
	WriteJSON(w, status, out)
}

// Fail writes {"status":"fail","error":msg}.
func Fail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{"status": "fail", "error": msg})
}

// DecodeJSON reads a bounded JSON body into dst and runs struct validation.
// The returned error is safe to show to the client.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("request body exceeds %d bytes", tooBig.Limit)
		}
		return errors.New("invalid payload")
	}
	return Validate(dst)
}

// Validate runs the `validate` struct tags on v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("field %s failed %q validation", fe.Field(), fe.Tag())
		}
		return errors.New("invalid payload")
	}
	return nil
}
