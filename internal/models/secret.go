package models

import "encoding/json"

// PlainSecret wraps the one-time plaintext API secret handed back on
// registration. It redacts itself through fmt and the default JSON
// marshaller so it cannot leak into logs or persisted records by
// accident; callers that really need the value must call Reveal.
type PlainSecret struct {
	value string
}

// NewPlainSecret wraps a freshly generated secret
func NewPlainSecret(value string) PlainSecret {
	return PlainSecret{value: value}
}

// Reveal returns the plaintext secret. The caller owns safe delivery;
// the value is not recoverable after the registration response.
func (s PlainSecret) Reveal() string {
	return s.value
}

// String implements fmt.Stringer
func (s PlainSecret) String() string {
	return "[REDACTED]"
}

// MarshalJSON redacts the secret in any default serialization path
func (s PlainSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal("[REDACTED]")
}

// GoString keeps %#v output redacted as well
func (s PlainSecret) GoString() string {
	return "models.PlainSecret{value:\"[REDACTED]\"}"
}
