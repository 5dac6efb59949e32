// Package forms validates submitted payloads and guards mutating requests
// with a double-submit CSRF token.
package forms

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Errors maps a field name to its validation message, surfaced inline to
// the client instead of a generic failure.
type Errors map[string]string

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check runs the struct's validation tags and returns field-level errors.
// A nil result means the payload passed every validator.
func Check(payload interface{}) Errors {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return Errors{"_": "invalid submission"}
	}

	fieldErrors := Errors{}
	for _, fe := range err.(validator.ValidationErrors) {
		fieldErrors[fieldName(fe)] = message(fe)
	}
	return fieldErrors
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Title":
		return "title"
	case "Content":
		return "content"
	case "Username":
		return "username"
	case "Email":
		return "email"
	case "FirstName":
		return "first_name"
	case "LastName":
		return "last_name"
	case "Password":
		return "password"
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		return "value is too short"
	}
	return "invalid value"
}

// WriteErrors responds with the inline field errors and a 422 status.
func WriteErrors(w http.ResponseWriter, fieldErrors Errors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]Errors{"errors": fieldErrors})
}

// CSRFCookie is the cookie carrying the token half of the double-submit pair.
const CSRFCookie = "csrf_token"

// CSRFHeader is the request header the client echoes the token back in.
const CSRFHeader = "X-CSRF-Token"

// IssueCSRF sets a fresh CSRF cookie and returns the token for the client
// to echo in the CSRFHeader on mutating requests.
func IssueCSRF(w http.ResponseWriter, secure bool) string {
	token := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	return token
}

// VerifyCSRF checks that the header token matches the cookie token.
func VerifyCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(CSRFHeader)
	if header == "" {
		// Multipart form submissions may carry the token as a field.
		header = r.FormValue("csrf_token")
	}
	return header != "" && header == cookie.Value
}

// CSRFMiddleware rejects mutating requests whose CSRF pair does not match.
func CSRFMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodDelete:
				if !VerifyCSRF(r) {
					http.Error(w, "Invalid CSRF token", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
