package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// EnvKeystorePass is consulted before prompting for a keystore passphrase.
const EnvKeystorePass = "VSA_KEYSTORE_PASS"

// ErrMismatch is returned when the confirmation prompt differs from the first entry.
var ErrMismatch = errors.New("passphrases do not match")

// Source resolves a keystore passphrase from an environment variable or an
// interactive prompt and caches the first successful result.
type Source struct {
	envVar string
	prompt io.Writer

	lookupEnv    func(string) (string, bool)
	isTerminal   func() bool
	readPassword func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source reading envVar, falling back to the terminal.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		prompt:       os.Stderr,
		lookupEnv:    os.LookupEnv,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// Get returns the passphrase for an existing keystore.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve(false)
	})
	return s.value, s.err
}

// GetNew returns the passphrase for a keystore about to be written. When
// prompting, the operator has to type it twice.
func (s *Source) GetNew() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve(true)
	})
	return s.value, s.err
}

func (s *Source) resolve(confirm bool) (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("keystore passphrase required and no terminal available")
	}

	first, err := s.read("Keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if !confirm {
		return first, nil
	}
	second, err := s.read("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", ErrMismatch
	}
	return first, nil
}

func (s *Source) read(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := s.readPassword()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	value := string(raw)
	if strings.TrimSpace(value) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return value, nil
}
