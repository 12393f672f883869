package casper

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

type Algorithm byte

const (
	AlgorithmEd25519   Algorithm = 0x01
	AlgorithmSecp256k1 Algorithm = 0x02
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmEd25519:
		return "ed25519"
	case AlgorithmSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

func (a Algorithm) keyLength() (int, error) {
	switch a {
	case AlgorithmEd25519:
		return ed25519.PublicKeySize, nil
	case AlgorithmSecp256k1:
		return 33, nil
	default:
		return 0, errors.Errorf("unsupported key algorithm tag %#x", byte(a))
	}
}

// PublicKey is an account public key prefixed by its algorithm tag.
type PublicKey struct {
	Algorithm Algorithm
	Raw       []byte
}

// ParsePublicKey parses the tagged hex form used for account addresses,
// e.g. "01" followed by 64 hex characters for ed25519 keys.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return PublicKey{}, errors.Wrapf(err, "invalid public key %q", s)
	}

	return publicKeyFromBytes(b)
}

func publicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) == 0 {
		return PublicKey{}, errors.New("empty public key")
	}

	algo := Algorithm(b[0])
	n, err := algo.keyLength()
	if err != nil {
		return PublicKey{}, err
	}
	if len(b)-1 != n {
		return PublicKey{}, errors.Errorf("invalid %s public key length %d, expected %d", algo, len(b)-1, n)
	}

	raw := make([]byte, n)
	copy(raw, b[1:])

	return PublicKey{Algorithm: algo, Raw: raw}, nil
}

func (k PublicKey) IsZero() bool {
	return len(k.Raw) == 0
}

// Bytes returns the tagged binary form.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, 0, len(k.Raw)+1)
	out = append(out, byte(k.Algorithm))
	return append(out, k.Raw...)
}

func (k PublicKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

func (k PublicKey) String() string {
	return k.Hex()
}

func (k PublicKey) Equal(other PublicKey) bool {
	return k.Hex() == other.Hex()
}

// AccountHash derives the account hash the node stores accounts under.
func (k PublicKey) AccountHash() Hash {
	return blake2b256([]byte(k.Algorithm.String()), []byte{0}, k.Raw)
}

// Verify checks a tagged signature over msg. secp256k1 signatures are the
// 64 byte r || s form over sha256(msg).
func (k PublicKey) Verify(msg, signature []byte) error {
	if len(signature) == 0 {
		return errors.New("empty signature")
	}
	if Algorithm(signature[0]) != k.Algorithm {
		return errors.Errorf("signature algorithm %s does not match key algorithm %s", Algorithm(signature[0]), k.Algorithm)
	}

	switch k.Algorithm {
	case AlgorithmEd25519:
		if !ed25519.Verify(ed25519.PublicKey(k.Raw), msg, signature[1:]) {
			return errors.New("invalid ed25519 signature")
		}
		return nil
	case AlgorithmSecp256k1:
		return verifySecp256k1(k.Raw, msg, signature[1:])
	default:
		return errors.Errorf("signature verification for %s keys is not supported", k.Algorithm)
	}
}

func verifySecp256k1(raw, msg, signature []byte) error {
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return errors.Wrap(err, "invalid secp256k1 public key")
	}

	if len(signature) != 64 {
		return errors.Errorf("invalid secp256k1 signature length %d", len(signature))
	}

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(signature[:32]) || s.SetByteSlice(signature[32:]) {
		return errors.New("secp256k1 signature overflows the curve order")
	}

	digest := sha256.Sum256(msg)
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return errors.New("invalid secp256k1 signature")
	}

	return nil
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Hex())
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// KeyPair is a signing identity, backed by either an ed25519 or a secp256k1
// private key.
type KeyPair struct {
	PublicKey PublicKey
	edKey     ed25519.PrivateKey
	secpKey   *secp256k1.PrivateKey
}

func NewKeyPair(private ed25519.PrivateKey) *KeyPair {
	pub := private.Public().(ed25519.PublicKey)

	return &KeyPair{
		PublicKey: PublicKey{Algorithm: AlgorithmEd25519, Raw: []byte(pub)},
		edKey:     private,
	}
}

func NewSecp256k1KeyPair(private *secp256k1.PrivateKey) *KeyPair {
	return &KeyPair{
		PublicKey: PublicKey{Algorithm: AlgorithmSecp256k1, Raw: private.PubKey().SerializeCompressed()},
		secpKey:   private,
	}
}

// LoadKeyPair reads PEM encoded keys as written by casper-client keygen:
// PKCS8 ed25519 or SEC1 secp256k1 private keys. The public key file is
// optional: when it does not exist the key is derived from the private key.
func LoadKeyPair(publicKeyPath, privateKeyPath string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading private key")
	}

	kp, err := parsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing private key %s", privateKeyPath)
	}

	if publicKeyPath == "" {
		return kp, nil
	}

	pubPEM, err := os.ReadFile(publicKeyPath)
	if errors.Is(err, os.ErrNotExist) {
		return kp, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading public key")
	}

	pub, err := parsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing public key %s", publicKeyPath)
	}

	if !pub.Equal(kp.PublicKey) {
		return nil, errors.New("public key does not match private key")
	}

	return kp, nil
}

// Sign returns the algorithm-tagged signature of msg.
func (kp *KeyPair) Sign(msg []byte) []byte {
	if kp.secpKey != nil {
		digest := sha256.Sum256(msg)
		sig := ecdsa.Sign(kp.secpKey, digest[:])
		r, s := sig.R(), sig.S()
		rb, sb := r.Bytes(), s.Bytes()

		out := make([]byte, 0, 65)
		out = append(out, byte(AlgorithmSecp256k1))
		out = append(out, rb[:]...)
		return append(out, sb[:]...)
	}

	sig := ed25519.Sign(kp.edKey, msg)

	out := make([]byte, 0, len(sig)+1)
	out = append(out, byte(AlgorithmEd25519))
	return append(out, sig...)
}

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1      = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// sec1PrivateKey is the RFC 5915 EC private key structure.
type sec1PrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

func parsePrivateKeyPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if block.Type == "EC PRIVATE KEY" {
		return parseSecp256k1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		private, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.Errorf("unsupported private key type %T", key)
		}
		return NewKeyPair(private), nil
	}

	// Older key files carry the bare seed at the end of the block.
	if len(block.Bytes) < ed25519.SeedSize {
		return nil, errors.Wrap(err, "invalid PKCS8 private key")
	}

	return NewKeyPair(ed25519.NewKeyFromSeed(block.Bytes[len(block.Bytes)-ed25519.SeedSize:])), nil
}

func parseSecp256k1PrivateKey(der []byte) (*KeyPair, error) {
	var key sec1PrivateKey
	if _, err := asn1.Unmarshal(der, &key); err != nil {
		return nil, errors.Wrap(err, "invalid SEC1 private key")
	}

	if len(key.NamedCurveOID) > 0 && !key.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, errors.Errorf("unsupported curve %s", key.NamedCurveOID)
	}
	if len(key.PrivateKey) == 0 || len(key.PrivateKey) > 32 {
		return nil, errors.Errorf("invalid secp256k1 private key length %d", len(key.PrivateKey))
	}

	return NewSecp256k1KeyPair(secp256k1.PrivKeyFromBytes(key.PrivateKey)), nil
}

func parsePublicKeyPEM(data []byte) (PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return PublicKey{}, errors.New("no PEM block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return PublicKey{}, errors.Errorf("unsupported public key type %T", key)
		}
		return PublicKey{Algorithm: AlgorithmEd25519, Raw: []byte(pub)}, nil
	}

	// The x509 package does not know the secp256k1 curve.
	var info subjectPublicKeyInfo
	if _, asnErr := asn1.Unmarshal(block.Bytes, &info); asnErr == nil && info.Algorithm.Algorithm.Equal(oidPublicKeyECDSA) {
		pub, err := secp256k1.ParsePubKey(info.PublicKey.RightAlign())
		if err != nil {
			return PublicKey{}, errors.Wrap(err, "invalid secp256k1 public key")
		}
		return PublicKey{Algorithm: AlgorithmSecp256k1, Raw: pub.SerializeCompressed()}, nil
	}

	if len(block.Bytes) < ed25519.PublicKeySize {
		return PublicKey{}, errors.Wrap(err, "invalid PKIX public key")
	}

	return PublicKey{Algorithm: AlgorithmEd25519, Raw: block.Bytes[len(block.Bytes)-ed25519.PublicKeySize:]}, nil
}
