package driven

// SecretSealer encrypts values before they are written to the key-value store
type SecretSealer interface {
	// Seal encrypts plaintext into an opaque blob
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts a blob produced by Seal
	Open(blob []byte) ([]byte, error)
}
