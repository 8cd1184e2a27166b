package encryption

// Handler seals secrets at rest so passphrases need not be stored in plain
// text in configuration files.
type Handler interface {
	Seal(string) (string, error)
	Open(string) (string, error)
}
