package model

// Caller is the identity asserted by the external membership provider.
type Caller struct {
	ID       string
	Eligible bool
}
