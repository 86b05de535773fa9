// Package siwe builds Sign-In With Ethereum (EIP-4361) messages and runs the
// nonce, sign, login sequence against the platform.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
	"github.com/devilmonastery/tessera/internal/wallet"
)

// Version is the only message version defined by EIP-4361.
const Version = "1"

const header = " wants you to sign in with your Ethereum account:"

var ErrMalformedMessage = errors.New("malformed sign-in message")

// Message is the structured sign-in message.
type Message struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	Version   string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
}

// NewMessage builds a message for signing in to the API at apiURI. The
// domain is taken from the URI's host and the address is checksummed.
func NewMessage(apiURI, address string, chainID int64, nonce string, issuedAt time.Time) (*Message, error) {
	domain, err := urlutil.Host(apiURI)
	if err != nil {
		return nil, fmt.Errorf("sign-in domain: %w", err)
	}
	checksummed, err := wallet.ChecksumAddress(address)
	if err != nil {
		return nil, err
	}
	if err := validateNonce(nonce); err != nil {
		return nil, err
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive, got %d", chainID)
	}

	return &Message{
		Domain:   domain,
		Address:  checksummed,
		URI:      apiURI,
		Version:  Version,
		ChainID:  chainID,
		Nonce:    nonce,
		IssuedAt: issuedAt.UTC().Truncate(time.Second),
	}, nil
}

// String renders the message exactly as it is signed.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + header + "\n")
	b.WriteString(m.Address + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.Format(time.RFC3339))
	return b.String()
}

// Parse reads a message produced by String.
func Parse(s string) (*Message, error) {
	lines := strings.Split(s, "\n")
	if len(lines) < 8 {
		return nil, fmt.Errorf("%w: too few lines", ErrMalformedMessage)
	}

	domain, ok := strings.CutSuffix(lines[0], header)
	if !ok || domain == "" {
		return nil, fmt.Errorf("%w: bad header", ErrMalformedMessage)
	}
	m := &Message{Domain: domain, Address: lines[1]}
	if lines[2] != "" {
		return nil, fmt.Errorf("%w: expected blank line after address", ErrMalformedMessage)
	}

	rest := lines[3:]
	if rest[0] != "" {
		m.Statement = rest[0]
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != "" {
		return nil, fmt.Errorf("%w: expected blank line before fields", ErrMalformedMessage)
	}

	fields := map[string]string{}
	for _, line := range rest[1:] {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("%w: bad field %q", ErrMalformedMessage, line)
		}
		fields[key] = value
	}

	m.URI = fields["URI"]
	m.Version = fields["Version"]
	m.Nonce = fields["Nonce"]
	chainID, err := strconv.ParseInt(fields["Chain ID"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrMalformedMessage, err)
	}
	m.ChainID = chainID
	m.IssuedAt, err = time.Parse(time.RFC3339, fields["Issued At"])
	if err != nil {
		return nil, fmt.Errorf("%w: issued at: %v", ErrMalformedMessage, err)
	}

	if err := wallet.ValidateAddress(m.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.URI == "" || m.Version != Version || m.Nonce == "" {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedMessage)
	}
	return m, nil
}

// EIP-4361 nonces are at least 8 alphanumeric characters.
func validateNonce(nonce string) error {
	if len(nonce) < 8 {
		return fmt.Errorf("nonce %q is shorter than 8 characters", nonce)
	}
	for _, r := range nonce {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			return fmt.Errorf("nonce %q is not alphanumeric", nonce)
		}
	}
	return nil
}
