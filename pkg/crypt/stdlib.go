package crypt

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"github.com/hatn-go/hatn/pkg/herr"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm names recognized by StdlibPlugin.
const (
	AlgNameAES256GCM    = "aes-256-gcm"
	AlgNameAES256CTR    = "aes-256-ctr"
	AlgNameSHA256       = "sha256"
	AlgNameSHA512       = "sha512"
	AlgNameHMACSHA256   = "hmac-sha256"
	AlgNamePBKDF2SHA256 = "pbkdf2-sha256"
	AlgNameHKDFSHA256   = "hkdf-sha256"
	AlgNameRSAPSS       = "rsa-pss-sha256"
	AlgNameECDSAP256    = "ecdsa-p256-sha256"
)

// StdlibPlugin implements CryptPlugin purely on top of Go's standard
// crypto packages plus golang.org/x/crypto, generalizing
// pkg/security/secrets.go's hardcoded AES-256-GCM call into a named,
// registry-selected algorithm.
type StdlibPlugin struct{ key []byte }

// NewStdlibPlugin returns a plugin whose symmetric/AEAD slots derive their
// key material from masterKey (32 bytes, AES-256), mirroring
// pkg/security.SecretsManager's fixed 32-byte key requirement.
func NewStdlibPlugin(masterKey []byte) (*StdlibPlugin, error) {
	if len(masterKey) != 32 {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "stdlib plugin master key must be 32 bytes")
	}
	return &StdlibPlugin{key: masterKey}, nil
}

func (p *StdlibPlugin) Name() string { return "stdlib" }

type gcmAEAD struct{ gcm cipher.AEAD }

// Seal encrypts plaintext, prepending a fresh nonce, matching
// pkg/security/secrets.go's EncryptSecret layout.
func (g gcmAEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, g.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "generating AEAD nonce", err)
	}
	return g.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func (g gcmAEAD) Open(ciphertext, aad []byte) ([]byte, error) {
	n := g.gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:n], ciphertext[n:]
	pt, err := g.gcm.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "AEAD open failed", err)
	}
	return pt, nil
}

func (p *StdlibPlugin) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "creating AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "creating GCM mode", err)
	}
	return gcm, nil
}

func (p *StdlibPlugin) NewAEADEncryptor(alg string) (AEADEncryptor, error) {
	if alg != AlgNameAES256GCM {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported AEAD algorithm "+alg)
	}
	gcm, err := p.newGCM()
	if err != nil {
		return nil, err
	}
	return gcmAEAD{gcm: gcm}, nil
}

func (p *StdlibPlugin) NewAEADDecryptor(alg string) (AEADDecryptor, error) {
	if alg != AlgNameAES256GCM {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported AEAD algorithm "+alg)
	}
	gcm, err := p.newGCM()
	if err != nil {
		return nil, err
	}
	return gcmAEAD{gcm: gcm}, nil
}

type ctrCipher struct{ key []byte }

func (c ctrCipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "creating AES cipher", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "generating IV", err)
	}
	out := make([]byte, len(iv)+len(plaintext))
	copy(out, iv)
	cipher.NewCTR(block, iv).XORKeyStream(out[len(iv):], plaintext)
	return out, nil
}

func (c ctrCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < aes.BlockSize {
		return nil, herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "ciphertext shorter than IV")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "creating AES cipher", err)
	}
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCTR(block, iv).XORKeyStream(out, body)
	return out, nil
}

func (p *StdlibPlugin) NewSEncryptor(alg string) (SEncryptor, error) {
	if alg != AlgNameAES256CTR {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported symmetric algorithm "+alg)
	}
	return ctrCipher{key: p.key}, nil
}

func (p *StdlibPlugin) NewSDecryptor(alg string) (SDecryptor, error) {
	if alg != AlgNameAES256CTR {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported symmetric algorithm "+alg)
	}
	return ctrCipher{key: p.key}, nil
}

type digestAlg struct{ newHash func() hash.Hash }

func (d digestAlg) Sum(data []byte) []byte {
	h := d.newHash()
	h.Write(data)
	return h.Sum(nil)
}

func (p *StdlibPlugin) NewDigest(alg string) (Digest, error) {
	switch alg {
	case AlgNameSHA256:
		return digestAlg{newHash: sha256.New}, nil
	case AlgNameSHA512:
		return digestAlg{newHash: sha512.New}, nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported digest algorithm "+alg)
	}
}

type hmacAlg struct{ newHash func() hash.Hash }

func (m hmacAlg) Sum(key, data []byte) []byte {
	h := hmac.New(m.newHash, key)
	h.Write(data)
	return h.Sum(nil)
}

func (m hmacAlg) Verify(key, data, mac []byte) bool {
	return hmac.Equal(m.Sum(key, data), mac)
}

func (p *StdlibPlugin) NewMAC(alg string) (MAC, error) {
	if alg != AlgNameHMACSHA256 {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported MAC algorithm "+alg)
	}
	return hmacAlg{newHash: sha256.New}, nil
}

type pbkdf2Alg struct{}

func (pbkdf2Alg) Derive(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New), nil
}

func (p *StdlibPlugin) NewPBKDF(alg string) (PBKDF, error) {
	if alg != AlgNamePBKDF2SHA256 {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported PBKDF algorithm "+alg)
	}
	return pbkdf2Alg{}, nil
}

type hkdfAlg struct{}

func (hkdfAlg) Derive(secret, salt, info []byte, keyLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, keyLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "deriving HKDF output", err)
	}
	return out, nil
}

func (p *StdlibPlugin) NewHKDF(alg string) (HKDF, error) {
	if alg != AlgNameHKDFSHA256 {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported HKDF algorithm "+alg)
	}
	return hkdfAlg{}, nil
}

type rsaPSSSign struct{}

func (rsaPSSSign) Sign(key any, data []byte) ([]byte, error) {
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "rsa-pss sign requires *rsa.PrivateKey")
	}
	digest := sha256.Sum256(data)
	return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
}

type rsaPSSVerify struct{}

func (rsaPSSVerify) Verify(key any, data, sig []byte) error {
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "rsa-pss verify requires *rsa.PublicKey")
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
		return herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "rsa-pss verification failed", err)
	}
	return nil
}

type ecdsaSign struct{}

func (ecdsaSign) Sign(key any, data []byte) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "ecdsa sign requires *ecdsa.PrivateKey")
	}
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

type ecdsaVerify struct{}

func (ecdsaVerify) Verify(key any, data, sig []byte) error {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "ecdsa verify requires *ecdsa.PublicKey")
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return herr.New(herr.Crypt, herr.ErrCryptGeneralFail, "ecdsa verification failed")
	}
	return nil
}

func (p *StdlibPlugin) NewSignatureSign(alg string) (SignatureSign, error) {
	switch alg {
	case AlgNameRSAPSS:
		return rsaPSSSign{}, nil
	case AlgNameECDSAP256:
		return ecdsaSign{}, nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported signature algorithm "+alg)
	}
}

func (p *StdlibPlugin) NewSignatureVerify(alg string) (SignatureVerify, error) {
	switch alg {
	case AlgNameRSAPSS:
		return rsaPSSVerify{}, nil
	case AlgNameECDSAP256:
		return ecdsaVerify{}, nil
	default:
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unsupported signature algorithm "+alg)
	}
}
