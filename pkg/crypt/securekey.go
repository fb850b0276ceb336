package crypt

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/hatn-go/hatn/pkg/herr"
)

// KeyRole is a bit in SecureKey.Role identifying what the key material may
// be used for (spec.md §4.3: "role bitmask over {Encrypt-Symmetric,
// Encrypt-Asymmetric, MAC, Sign, DH-Secret, DH-Priv, Passphrase, General}").
type KeyRole uint16

const (
	RoleEncryptSymmetric KeyRole = 1 << iota
	RoleEncryptAsymmetric
	RoleMAC
	RoleSign
	RoleDHSecret
	RoleDHPriv
	RolePassphrase
	RoleGeneral
)

// KeyFormat is an export encoding for SecureKey content.
type KeyFormat int

const (
	RawPlain KeyFormat = iota
	RawEncrypted
	FormatPEM
	FormatDER
)

// SecureKey holds key material that may live as a native crypto handle
// (*rsa.PrivateKey, *ecdsa.PrivateKey, raw symmetric bytes, ...), as
// opaque exported ciphertext, both, or neither until unpacked.
// pkg/security/ca.go keeps its root key exclusively as *rsa.PrivateKey and
// separately as AES-GCM-wrapped DER; SecureKey generalizes that split into
// one type shared across all suite-produced key material.
type SecureKey struct {
	Role   KeyRole
	Native any
	cipher []byte // RAW_ENCRYPTED content, AES-GCM sealed via the owning suite's AEAD
}

// NewSecureKeyFromNative wraps an already-materialized native handle
// (e.g. the output of rsa.GenerateKey) under the given role.
func NewSecureKeyFromNative(role KeyRole, native any) *SecureKey {
	return &SecureKey{Role: role, Native: native}
}

// packContent materializes exportable bytes for the key in the requested
// format. unprotected must be true to export RAW_PLAIN or DER key material
// (the two formats that expose unencrypted key bytes); PEM wraps the same
// unencrypted bytes and is gated identically, mirroring "unprotected export
// is allowed only if the backend permits" (spec.md §4.3).
func (k *SecureKey) packContent(format KeyFormat, unprotected bool) ([]byte, error) {
	switch format {
	case RawEncrypted:
		if k.cipher == nil {
			return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "secure key has no encrypted content to export")
		}
		return k.cipher, nil
	case RawPlain:
		if !unprotected {
			return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "raw plain export requires unprotected=true")
		}
		return k.nativeRawBytes()
	case FormatDER:
		if !unprotected {
			return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "DER export requires unprotected=true")
		}
		return k.nativeDERBytes()
	case FormatPEM:
		if !unprotected {
			return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "PEM export requires unprotected=true")
		}
		der, err := k.nativeDERBytes()
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: k.pemBlockType(), Bytes: der}), nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unknown key export format")
	}
}

// unpackContent rehydrates a SecureKey's native handle from previously
// packed bytes of the given format; the inverse of packContent.
func unpackContent(role KeyRole, format KeyFormat, data []byte) (*SecureKey, error) {
	switch format {
	case RawEncrypted:
		return &SecureKey{Role: role, cipher: data}, nil
	case RawPlain:
		return &SecureKey{Role: role, Native: data}, nil
	case FormatDER:
		native, err := parseDERKey(role, data)
		if err != nil {
			return nil, err
		}
		return &SecureKey{Role: role, Native: native}, nil
	case FormatPEM:
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "invalid PEM content")
		}
		native, err := parseDERKey(role, block.Bytes)
		if err != nil {
			return nil, err
		}
		return &SecureKey{Role: role, Native: native}, nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unknown key export format")
	}
}

func parseDERKey(role KeyRole, der []byte) (any, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "unrecognized DER key encoding")
}

func (k *SecureKey) nativeRawBytes() ([]byte, error) {
	switch n := k.Native.(type) {
	case []byte:
		return n, nil
	default:
		return k.nativeDERBytes()
	}
}

func (k *SecureKey) nativeDERBytes() ([]byte, error) {
	switch n := k.Native.(type) {
	case *rsa.PrivateKey:
		return x509.MarshalPKCS1PrivateKey(n), nil
	case *ecdsa.PrivateKey:
		return x509.MarshalECPrivateKey(n)
	case []byte:
		return n, nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "secure key has no DER-encodable native handle")
	}
}

func (k *SecureKey) pemBlockType() string {
	switch k.Native.(type) {
	case *rsa.PrivateKey:
		return "RSA PRIVATE KEY"
	case *ecdsa.PrivateKey:
		return "EC PRIVATE KEY"
	default:
		return "PRIVATE KEY"
	}
}

// Seal encrypts the key's native DER encoding with enc and stores the
// result as the key's RAW_ENCRYPTED content, matching pkg/security/ca.go's
// SaveToStore, which AES-GCM-wraps the marshaled root key before
// persisting it.
func (k *SecureKey) Seal(enc AEADEncryptor) error {
	der, err := k.nativeDERBytes()
	if err != nil {
		return err
	}
	ct, err := enc.Seal(der, nil)
	if err != nil {
		return err
	}
	k.cipher = ct
	return nil
}

// Unseal decrypts the key's RAW_ENCRYPTED content with dec and restores
// the native handle, the inverse of Seal, matching
// pkg/security/ca.go's LoadFromStore.
func (k *SecureKey) Unseal(dec AEADDecryptor, role KeyRole) error {
	if k.cipher == nil {
		return herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "secure key has no sealed content")
	}
	der, err := dec.Open(k.cipher, nil)
	if err != nil {
		return err
	}
	native, err := parseDERKey(role, der)
	if err != nil {
		return err
	}
	k.Native = native
	return nil
}

// CreatePassphraseKey derives a RolePassphrase-tagged SecureKey from a
// human passphrase via the suite's PBKDF slot, matching
// pkg/security/secrets.go's DeriveKeyFromPassword (SHA-256 of a password,
// generalized here to the suite's configured PBKDF algorithm).
func (s *CipherSuite) CreatePassphraseKey(engineName string, passphrase, salt []byte, keyLen int) (*SecureKey, error) {
	kdf, err := s.CreatePBKDF(engineName, "")
	if err != nil {
		return nil, err
	}
	raw, err := kdf.Derive(passphrase, salt, 0, keyLen)
	if err != nil {
		return nil, err
	}
	return &SecureKey{Role: RolePassphrase, Native: raw}, nil
}
