package users

import (
	"strings"
	"time"
)

// Auth providers.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// DefaultLanguage is assumed when registration omits a preference.
const DefaultLanguage = "English"

// Languages lists the accepted preferred languages.
var Languages = []string{
	"English", "Hindi", "Bengali", "Telugu", "Marathi", "Tamil", "Urdu",
	"Gujarati", "Kannada", "Malayalam", "Odia", "Punjabi", "Assamese",
}

func normalizeLanguage(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLanguage, true
	}
	for _, lang := range Languages {
		if strings.EqualFold(lang, raw) {
			return lang, true
		}
	}
	return "", false
}

// User is an account. Secret fields never serialize.
type User struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PreferredLanguage string    `json:"preferredLanguage"`
	State             string    `json:"state"`
	AuthProvider      string    `json:"authProvider"`
	IsVerified        bool      `json:"isAccountVerified"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	PasswordHash    string    `json:"-"`
	VerifyOTP       string    `json:"-"`
	VerifyOTPExpiry time.Time `json:"-"`
	ResetOTP        string    `json:"-"`
	ResetOTPExpiry  time.Time `json:"-"`
}
