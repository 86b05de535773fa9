// Package wallet handles the secp256k1 keys used to sign in with a wallet:
// parsing hex private keys, deriving EIP-55 addresses and producing
// EIP-191 personal signatures.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrInvalidAddress is returned for addresses that are not 0x-prefixed
	// 20-byte hex strings.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidKey is returned for private keys that are not 32-byte hex.
	ErrInvalidKey = errors.New("invalid private key")
)

// Wallet holds a private key and its derived address.
type Wallet struct {
	key     *secp256k1.PrivateKey
	address string
}

// FromHex parses a hex-encoded private key, with or without a 0x prefix.
func FromHex(privateKey string) (*Wallet, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: expected 32 bytes of hex", ErrInvalidKey)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero key", ErrInvalidKey)
	}

	return &Wallet{key: key, address: addressFromPubKey(key.PubKey())}, nil
}

// Address returns the EIP-55 checksummed address.
func (w *Wallet) Address() string {
	return w.address
}

// SignPersonal signs message with the EIP-191 personal_sign prefix and
// returns the 65-byte r||s||v signature as 0x-prefixed hex, v in {27, 28}.
func (w *Wallet) SignPersonal(message string) (string, error) {
	compact := ecdsa.SignCompact(w.key, PersonalHash(message), false)
	if len(compact) != 65 {
		return "", fmt.Errorf("unexpected signature length %d", len(compact))
	}

	// SignCompact yields v||r||s; Ethereum expects r||s||v.
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverPersonal returns the checksummed address that produced signature
// over message.
func RecoverPersonal(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	compact := make([]byte, 65)
	compact[0] = sig[64]
	if compact[0] < 27 {
		compact[0] += 27
	}
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalHash(message))
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return addressFromPubKey(pub), nil
}

// PersonalHash is Keccak-256 over the EIP-191 version 0x45 envelope.
func PersonalHash(message string) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	return Keccak256([]byte(prefix), []byte(message))
}

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// ValidateAddress checks that s is a 0x-prefixed 20-byte hex address.
// Checksum casing is not enforced.
func ValidateAddress(s string) error {
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("%w: %q must start with 0x", ErrInvalidAddress, s)
	}
	body := s[2:]
	if len(body) != 40 {
		return fmt.Errorf("%w: %q must have 40 hex digits after 0x", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return fmt.Errorf("%w: %q is not hex", ErrInvalidAddress, s)
	}
	return nil
}

// ChecksumAddress applies EIP-55 mixed-case encoding to a valid address.
func ChecksumAddress(s string) (string, error) {
	if err := ValidateAddress(s); err != nil {
		return "", err
	}
	return checksum(strings.ToLower(s[2:])), nil
}

func addressFromPubKey(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hash := Keccak256(uncompressed[1:])
	return checksum(hex.EncodeToString(hash[12:]))
}

func checksum(lowerHex string) string {
	hash := hex.EncodeToString(Keccak256([]byte(lowerHex)))
	out := make([]byte, len(lowerHex))
	for i := range lowerHex {
		c := lowerHex[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
