package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
)

// KeyPair is the asymmetric key used by KeyPairSigner. KeyID becomes the
// "kid" header of issued access tokens and of the published JWK.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

func newKeyPair(keyID string, key crypto.PrivateKey) (*KeyPair, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &KeyPair{KeyID: keyID, PrivateKey: k, PublicKey: &k.PublicKey, Algorithm: AlgRS256}, nil
	case *ecdsa.PrivateKey:
		return &KeyPair{KeyID: keyID, PrivateKey: k, PublicKey: &k.PublicKey, Algorithm: AlgES256}, nil
	default:
		return nil, errors.Errorf("unsupported private key type %T", key)
	}
}

// GenerateECDSAKeyPair creates a P-256 key pair for ES256 access tokens.
func GenerateECDSAKeyPair(keyID string) (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateECDSAKeyPair] GenerateKey")
	}
	return newKeyPair(keyID, key)
}

func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	if kp.Algorithm == AlgES256 {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodRS256
}

// ExportPrivateKeyPEM encodes the private key in the format LoadKeyPairFromPEM
// reads back.
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	var block *pem.Block
	switch key := kp.PrivateKey.(type) {
	case *rsa.PrivateKey:
		block = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return "", errors.Wrap(err, "[KeyPair.ExportPrivateKeyPEM] MarshalECPrivateKey")
		}
		block = &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	default:
		return "", errors.Errorf("unsupported private key type %T", kp.PrivateKey)
	}
	return string(pem.EncodeToMemory(block)), nil
}

// LoadKeyPairFromPEM parses a PKCS#1 RSA, SEC 1 EC or PKCS#8 private key.
func LoadKeyPairFromPEM(keyID, pemData string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	var (
		key crypto.PrivateKey
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, errors.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadKeyPairFromPEM] parse %s", block.Type)
	}
	return newKeyPair(keyID, key)
}

// LoadOrCreateKeyPair reads the key at path, generating and saving an ES256
// key first when the file does not exist.
func LoadOrCreateKeyPair(path, keyID string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return LoadKeyPairFromPEM(keyID, string(data))
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "[LoadOrCreateKeyPair] ReadFile")
	}

	kp, err := GenerateECDSAKeyPair(keyID)
	if err != nil {
		return nil, err
	}
	encoded, err := kp.ExportPrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, errors.Wrap(err, "[LoadOrCreateKeyPair] WriteFile")
	}
	return kp, nil
}
