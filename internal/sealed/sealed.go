// Package sealed encrypts object bodies client-side with age before upload
// and decrypts them after download. Encryption is streaming: bodies are never
// held in memory in full.
package sealed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// Scheme is the value sent in the upload encryption header.
const Scheme = "age"

var ErrConflictingKeys = errors.New("a passphrase cannot be combined with recipients or identities")

// Options selects how a body is sealed or opened. The zero value leaves
// bodies untouched.
type Options struct {
	// Recipients are age1... public keys or paths to recipients files.
	Recipients []string
	// Identities are paths to age identity files.
	Identities []string
	Passphrase string
}

// Sealing reports whether uploads should be encrypted.
func (o Options) Sealing() bool {
	return len(o.Recipients) > 0 || o.Passphrase != ""
}

// Opening reports whether downloads should be decrypted.
func (o Options) Opening() bool {
	return len(o.Identities) > 0 || o.Passphrase != ""
}

func (o Options) recipients() ([]age.Recipient, error) {
	if o.Passphrase != "" {
		if len(o.Recipients) > 0 {
			return nil, ErrConflictingKeys
		}
		r, err := age.NewScryptRecipient(o.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("passphrase recipient: %w", err)
		}
		return []age.Recipient{r}, nil
	}

	var out []age.Recipient
	for _, value := range o.Recipients {
		if strings.HasPrefix(value, "age1") {
			r, err := age.ParseX25519Recipient(value)
			if err != nil {
				return nil, fmt.Errorf("parsing recipient key %q: %w", value, err)
			}
			out = append(out, r)
			continue
		}
		parsed, err := parseFile(value, age.ParseRecipients)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	return out, nil
}

func (o Options) identities() ([]age.Identity, error) {
	if o.Passphrase != "" {
		if len(o.Identities) > 0 {
			return nil, ErrConflictingKeys
		}
		id, err := age.NewScryptIdentity(o.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("passphrase identity: %w", err)
		}
		return []age.Identity{id}, nil
	}

	var out []age.Identity
	for _, path := range o.Identities {
		parsed, err := parseFile(path, age.ParseIdentities)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one identity is required")
	}
	return out, nil
}

func parseFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()
	parsed, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", path, err)
	}
	return parsed, nil
}

// EncryptReader returns a reader yielding the sealed form of src. Key
// problems are reported before any data is read. The caller must close the
// reader, which stops the encryption goroutine if the body was not consumed.
func EncryptReader(src io.Reader, opts Options) (io.ReadCloser, error) {
	recipients, err := opts.recipients()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(encrypt(pw, src, recipients))
	}()
	return pr, nil
}

func encrypt(dst io.Writer, src io.Reader, recipients []age.Recipient) error {
	w, err := age.Encrypt(dst, recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	return nil
}

// DecryptReader returns a reader yielding the plaintext of src.
func DecryptReader(src io.Reader, opts Options) (io.Reader, error) {
	identities, err := opts.identities()
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(src, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return r, nil
}
