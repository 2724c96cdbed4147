// Package security signs discovery responses so clients and caches can detect
// tampering with merchant lists.
package security

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Algorithm names the signature scheme in envelopes.
const Algorithm = "secp256k1-keccak256"

// Verification errors
var (
	ErrExpired          = errors.New("signature expired")
	ErrHashMismatch     = errors.New("payload hash mismatch")
	ErrBadSignature     = errors.New("signature verification failed")
	ErrUntrustedKey     = errors.New("payload signed by untrusted key")
	ErrMissingIntegrity = errors.New("integrity information missing")
)

// Envelope wraps a signed JSON payload.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Integrity *Integrity      `json:"integrity"`
}

// Integrity carries the hashes and signature over an envelope payload.
type Integrity struct {
	SHA256     string `json:"sha256"`
	Keccak256  string `json:"keccak256"`
	Signature  string `json:"signature"`
	PublicKey  string `json:"publicKey"`
	Algorithm  string `json:"algorithm"`
	Timestamp  int64  `json:"timestamp"`
	ValidUntil int64  `json:"validUntil"`
}

// Options configures a Signer
type Options struct {
	// How long a signature stays valid
	Validity time.Duration `json:"validity"`
}

// DefaultOptions returns the signer defaults.
func DefaultOptions() Options {
	return Options{Validity: 5 * time.Minute}
}

// Signer signs payloads with a secp256k1 key.
type Signer struct {
	privateKey   *ecdsa.PrivateKey
	publicKeyHex string
	opts         Options
	now          func() time.Time
}

// NewSigner creates a signer. An empty hexKey generates a fresh key, which
// means signatures cannot be verified across restarts.
func NewSigner(hexKey string, opts Options) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultOptions().Validity
	}

	s := &Signer{
		privateKey:   key,
		publicKeyHex: hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		opts:         opts,
		now:          time.Now,
	}
	logrus.Infof("Response signing enabled with public key: %s", s.publicKeyHex[:18]+"...")
	return s, nil
}

// PublicKey returns the uncompressed public key as 0x-prefixed hex.
func (s *Signer) PublicKey() string {
	return s.publicKeyHex
}

// Address returns the Ethereum-style address derived from the public key.
func (s *Signer) Address() string {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey).Hex()
}

// Sign marshals payload and wraps it in a signed envelope.
func (s *Signer) Sign(payload interface{}) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := s.now()
	integrity := &Integrity{
		SHA256:     hex.EncodeToString(sha256Sum(payloadBytes)),
		Keccak256:  crypto.Keccak256Hash(payloadBytes).Hex(),
		PublicKey:  s.publicKeyHex,
		Algorithm:  Algorithm,
		Timestamp:  now.Unix(),
		ValidUntil: now.Add(s.opts.Validity).Unix(),
	}

	sig, err := crypto.Sign(digest(payloadBytes, integrity), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	integrity.Signature = hexutil.Encode(sig)

	return &Envelope{Payload: payloadBytes, Integrity: integrity}, nil
}

// Verify checks an envelope produced by this signer.
func (s *Signer) Verify(env *Envelope) error {
	return Verify(env, s.publicKeyHex, s.now())
}

// Verify checks the envelope hashes, expiry and signature. When trustedKey is
// set the envelope must also have been signed by that key.
func Verify(env *Envelope, trustedKey string, now time.Time) error {
	if env == nil || env.Integrity == nil {
		return ErrMissingIntegrity
	}
	in := env.Integrity

	if now.Unix() > in.ValidUntil {
		return fmt.Errorf("%w at %v", ErrExpired, time.Unix(in.ValidUntil, 0).UTC())
	}

	// The payload may have been re-indented in transit
	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	payloadBytes := compact.Bytes()

	if hex.EncodeToString(sha256Sum(payloadBytes)) != in.SHA256 {
		return fmt.Errorf("%w: sha256", ErrHashMismatch)
	}
	if crypto.Keccak256Hash(payloadBytes).Hex() != in.Keccak256 {
		return fmt.Errorf("%w: keccak256", ErrHashMismatch)
	}

	if trustedKey != "" && !strings.EqualFold(trustedKey, in.PublicKey) {
		return ErrUntrustedKey
	}

	sig, err := hexutil.Decode(in.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length: %d", len(sig))
	}
	pub, err := hexutil.Decode(in.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to decode public key: %w", err)
	}

	// VerifySignature takes [R || S] without the recovery id
	if !crypto.VerifySignature(pub, digest(payloadBytes, in), sig[:crypto.RecoveryIDOffset]) {
		return ErrBadSignature
	}
	return nil
}

// digest binds the payload to its validity window.
func digest(payload []byte, in *Integrity) []byte {
	window := make([]byte, 16)
	binary.BigEndian.PutUint64(window[:8], uint64(in.Timestamp))
	binary.BigEndian.PutUint64(window[8:], uint64(in.ValidUntil))
	return crypto.Keccak256(payload, window)
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
