// Package credential contains the credential types that functions reference
// through their credentialId, and the rules for creating them.
// This is part of the Functional Core - all functions are pure with no I/O.
package credential

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/artpar/fnhost/internal/core/crypto"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNameRequired         = errors.New("credential name is required")
	ErrNameTooShort         = errors.New("credential name must be at least 3 characters")
	ErrNameTooLong          = errors.New("credential name must be at most 100 characters")
	ErrDescriptionTooLong   = errors.New("description cannot exceed 255 characters")
	ErrInvalidType          = errors.New("invalid credential type")
	ErrValueRequired        = errors.New("credential value is required")
	ErrBasicAuthValueFormat = errors.New("basic auth value must be username:password")
)

// =============================================================================
// Types
// =============================================================================

// Type is the kind of secret a credential holds.
type Type string

const (
	TypeAPIKey      Type = "api_key"
	TypeBearerToken Type = "bearer_token"
	TypeBasicAuth   Type = "basic_auth"
	TypeOAuth2      Type = "oauth2"
	TypeCustom      Type = "custom"
)

// Types lists every supported credential type.
var Types = []Type{TypeAPIKey, TypeBearerToken, TypeBasicAuth, TypeOAuth2, TypeCustom}

// IsValid checks if the credential type is supported.
func (t Type) IsValid() bool {
	switch t {
	case TypeAPIKey, TypeBearerToken, TypeBasicAuth, TypeOAuth2, TypeCustom:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable name for the type.
func (t Type) DisplayName() string {
	switch t {
	case TypeAPIKey:
		return "API Key"
	case TypeBearerToken:
		return "Bearer Token"
	case TypeBasicAuth:
		return "Basic Auth"
	case TypeOAuth2:
		return "OAuth 2.0"
	case TypeCustom:
		return "Custom"
	default:
		return string(t)
	}
}

// =============================================================================
// Credential
// =============================================================================

// Credential is a stored secret. The plaintext value is never kept on the
// struct; only the sealed bytes and a masked hint.
type Credential struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            Type       `json:"type"`
	Description     string     `json:"description,omitempty"`
	Hint            string     `json:"hint"`
	SecretEncrypted []byte     `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsed,omitempty"`
}

// Input is the data needed to create a credential.
type Input struct {
	Name        string `json:"name"`
	Type        Type   `json:"type"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
}

// NewID generates a new credential ID.
func NewID() string {
	return "cred-" + uuid.New().String()[:8]
}

// ValidateName checks credential name bounds.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	n := utf8.RuneCountInString(name)
	if n < 3 {
		return ErrNameTooShort
	}
	if n > 100 {
		return ErrNameTooLong
	}
	return nil
}

// ValidateValue checks that value is usable for the given type.
func ValidateValue(t Type, value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrValueRequired
	}
	if t == TypeBasicAuth {
		user, pass, ok := strings.Cut(value, ":")
		if !ok || user == "" || pass == "" {
			return ErrBasicAuthValueFormat
		}
	}
	return nil
}

// ValidateInput checks every field and returns the first failing field and its
// message, or empty strings when the input is valid.
func ValidateInput(in Input) (field, message string) {
	if err := ValidateName(strings.TrimSpace(in.Name)); err != nil {
		return "name", err.Error()
	}
	if !in.Type.IsValid() {
		return "type", ErrInvalidType.Error()
	}
	if utf8.RuneCountInString(in.Description) > 255 {
		return "description", ErrDescriptionTooLong.Error()
	}
	if err := ValidateValue(in.Type, in.Value); err != nil {
		return "value", err.Error()
	}
	return "", ""
}

// New validates the input and seals its value with key.
func New(in Input, key []byte) (*Credential, error) {
	if field, msg := ValidateInput(in); field != "" {
		return nil, &InputError{Field: field, Message: msg}
	}

	id := NewID()
	sealed, err := crypto.Seal([]byte(in.Value), key, id)
	if err != nil {
		return nil, err
	}

	return &Credential{
		ID:              id,
		Name:            strings.TrimSpace(in.Name),
		Type:            in.Type,
		Description:     in.Description,
		Hint:            Mask(in.Type, in.Value),
		SecretEncrypted: sealed,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// Reveal returns the plaintext value. The API never calls it; it is the read
// path for an executor that injects the secret at invocation time.
func (c *Credential) Reveal(key []byte) (string, error) {
	plain, err := crypto.Open(c.SecretEncrypted, key, c.ID)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Mask returns a display hint that never exposes more than the last four
// characters of a secret. Basic auth values show the username only.
func Mask(t Type, value string) string {
	if t == TypeBasicAuth {
		if user, _, ok := strings.Cut(value, ":"); ok {
			return user + ":****"
		}
	}
	runes := []rune(value)
	if len(runes) <= 8 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}

// InputError reports the first invalid field of an Input.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}
