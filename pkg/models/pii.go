package models

import "time"

// PII types detected by the redactor.
const (
	PIITypeEmail  = "EMAIL"
	PIITypePhone  = "PHONE"
	PIITypeSSN    = "SSN"
	PIITypePerson = "PERSON"
)

// PIIVaultEntry stores the encrypted original for a token substituted into
// redacted text. Tokens appear literally in redacted text as {{token}}.
type PIIVaultEntry struct {
	Token      string    `json:"token"`
	Type       string    `json:"type"`
	Ciphertext string    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

// PIIFinding is one detected span of PII in extracted text.
type PIIFinding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}
