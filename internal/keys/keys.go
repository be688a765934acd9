// Package keys signs and verifies transactions with secp256k1 keys.
//
// Private keys are hex-encoded 32-byte scalars. An address is the hex
// encoding of the compressed public key, so it carries everything needed to
// verify a signature.
package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/cockroachdb/errors"
)

const (
	privateKeyLen = 32
	digestLen     = 32
)

// Secp256k1 implements the ledger's key capability.
type Secp256k1 struct{}

// New returns a Secp256k1 key manager.
func New() *Secp256k1 {
	return &Secp256k1{}
}

// KeyPair is a freshly generated private key and its address.
type KeyPair struct {
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
}

// Generate creates a new random key pair.
func (k *Secp256k1) Generate() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate private key")
	}
	return &KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		Address:    hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}, nil
}

// DeriveAddress returns the address owned by privateKey.
func (k *Secp256k1) DeriveAddress(privateKey string) (string, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// Sign signs the hex digest hash and returns a hex DER signature.
func (k *Secp256k1) Sign(hash, privateKey string) (string, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	digest, err := parseDigest(hash)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ecdsa.Sign(priv, digest).Serialize()), nil
}

// Verify checks a hex DER signature over the hex digest hash against
// address. Malformed input is an error rather than a false result.
func (k *Secp256k1) Verify(hash, signature, address string) (bool, error) {
	digest, err := parseDigest(hash)
	if err != nil {
		return false, err
	}

	pubBytes, err := hex.DecodeString(address)
	if err != nil {
		return false, errors.Wrap(err, "decode address")
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false, errors.Wrap(err, "parse public key")
	}

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false, errors.Wrap(err, "decode signature")
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, errors.Wrap(err, "parse signature")
	}

	return sig.Verify(digest, pub), nil
}

func parsePrivateKey(privateKey string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	if len(b) != privateKeyLen {
		return nil, errors.Newf("private key must be %d bytes, got %d", privateKeyLen, len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

func parseDigest(hash string) ([]byte, error) {
	b, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errors.Wrap(err, "decode hash")
	}
	if len(b) != digestLen {
		return nil, errors.Newf("hash must be %d bytes, got %d", digestLen, len(b))
	}
	return b, nil
}
