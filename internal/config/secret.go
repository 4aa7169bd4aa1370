package config

// Secret holds the cloud API key (or any other credential) in a type that
// cannot leak through formatting: %s, %v, and %#v all print a mask. Anything
// that genuinely needs the key (request headers, the websocket URL) must ask
// for it via Value().
type Secret string

// String implements fmt.Stringer with a mask.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString masks %#v output as well.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Value returns the real credential.
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty reports whether no credential is set.
func (s Secret) IsEmpty() bool {
	return s == ""
}
