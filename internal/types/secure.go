package types

// redacted is the placeholder substituted for secret values in logs and
// serialized output.
const redacted = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive value (the Stripe API key) and keeps it out
// of fmt output and JSON serialization. Call Unmask only at the point the
// plaintext is genuinely needed, e.g. when setting an Authorization header.
type SecretString string

// String returns the redacted placeholder. Invoked by fmt and any other
// consumer of the fmt.Stringer interface.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON returns the redacted placeholder so config dumps and structured
// log entries never carry the plaintext.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}
