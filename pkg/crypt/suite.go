// Package crypt implements the Cipher Suite + Crypt Engine substrate
// (spec.md §4.3): named algorithm bundles resolved and cached per suite,
// backed by Go's standard crypto packages and golang.org/x/crypto, wired
// the way pkg/security/{ca,certs,secrets}.go wires RSA/AES-GCM/x509 —
// generalized from that package's hardcoded single-algorithm choices into
// a registry of named, swappable algorithms per spec.md §9's "replace
// dynamic dlopen with a registry populated at process start" note.
package crypt

import (
	"sync"

	"github.com/hatn-go/hatn/pkg/herr"
)

// AlgKind tags the cryptographic role an algorithm name is registered
// under within a suite.
type AlgKind int

const (
	AlgSymmetric AlgKind = iota
	AlgDigest
	AlgAEAD
	AlgMAC
	AlgHKDFDigest
	AlgPBKDF
	AlgDH
	AlgECDH
	AlgSignature
)

// CipherSuite is an identified bundle of named algorithms (spec.md §4.3).
// Each slot is optional; SEncryptor/SDecryptor etc. resolve and cache the
// concrete algorithm on first use.
type CipherSuite struct {
	ID string // ≤128 bytes per spec.md §4.3

	Symmetric    string
	Digest       string
	AEAD         string
	MAC          string
	HKDFDigest   string
	PBKDF        string
	DH           string
	ECDH         string
	Signature    string

	mu     sync.Mutex
	cached map[AlgKind]any
}

// NewCipherSuite builds a named, empty suite; slots are filled by the
// With* setters before first use.
func NewCipherSuite(id string) *CipherSuite {
	if len(id) > 128 {
		id = id[:128]
	}
	return &CipherSuite{ID: id, cached: map[AlgKind]any{}}
}

func (s *CipherSuite) WithSymmetric(name string) *CipherSuite  { s.Symmetric = name; return s }
func (s *CipherSuite) WithDigest(name string) *CipherSuite     { s.Digest = name; return s }
func (s *CipherSuite) WithAEAD(name string) *CipherSuite       { s.AEAD = name; return s }
func (s *CipherSuite) WithMAC(name string) *CipherSuite        { s.MAC = name; return s }
func (s *CipherSuite) WithHKDFDigest(name string) *CipherSuite { s.HKDFDigest = name; return s }
func (s *CipherSuite) WithPBKDF(name string) *CipherSuite      { s.PBKDF = name; return s }
func (s *CipherSuite) WithDH(name string) *CipherSuite         { s.DH = name; return s }
func (s *CipherSuite) WithECDH(name string) *CipherSuite       { s.ECDH = name; return s }
func (s *CipherSuite) WithSignature(name string) *CipherSuite  { s.Signature = name; return s }

func (s *CipherSuite) resolve(kind AlgKind, name string, build func(string) (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cached[kind]; ok {
		return v, nil
	}
	if name == "" {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "cipher suite slot not configured")
	}
	v, err := build(name)
	if err != nil {
		return nil, err
	}
	s.cached[kind] = v
	return v, nil
}

// CryptPlugin is a backend owning concrete algorithm factories, e.g. the
// stdlib-backed plugin registered by RegisterStdlibDefaults.
type CryptPlugin interface {
	Name() string
	NewSEncryptor(alg string) (SEncryptor, error)
	NewSDecryptor(alg string) (SDecryptor, error)
	NewAEADEncryptor(alg string) (AEADEncryptor, error)
	NewAEADDecryptor(alg string) (AEADDecryptor, error)
	NewDigest(alg string) (Digest, error)
	NewMAC(alg string) (MAC, error)
	NewPBKDF(alg string) (PBKDF, error)
	NewHKDF(alg string) (HKDF, error)
	NewSignatureSign(alg string) (SignatureSign, error)
	NewSignatureVerify(alg string) (SignatureVerify, error)
}

// CryptEngine pairs a plugin with an opaque native engine handle, matching
// spec.md §4.3's "(plugin, opaque native engine handle)" pair; the stdlib
// plugin has no native engine so handle is always nil here.
type CryptEngine struct {
	Plugin CryptPlugin
	Handle any
}

// registry is the process singleton described in spec.md §4.3 as
// CipherSuites: suite registry, engine registry, default suite/engine, and
// a default random generator (crypto/rand.Reader, used directly by callers
// since Go's rand.Reader needs no wrapper type).
type registry struct {
	mu            sync.RWMutex
	suites        map[string]*CipherSuite
	engines       map[string]*CryptEngine
	defaultSuite  string
	defaultEngine string
}

var CipherSuites = &registry{
	suites:  map[string]*CipherSuite{},
	engines: map[string]*CryptEngine{},
}

func (r *registry) RegisterSuite(s *CipherSuite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suites[s.ID] = s
	if r.defaultSuite == "" {
		r.defaultSuite = s.ID
	}
}

func (r *registry) RegisterEngine(name string, e *CryptEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = e
	if r.defaultEngine == "" {
		r.defaultEngine = name
	}
}

func (r *registry) Suite(id string) (*CipherSuite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.suites[id]
	if !ok {
		return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "unknown cipher suite "+id)
	}
	return s, nil
}

func (r *registry) DefaultSuite() (*CipherSuite, error) {
	r.mu.RLock()
	id := r.defaultSuite
	r.mu.RUnlock()
	if id == "" {
		return nil, herr.New(herr.Crypt, herr.ErrPluginNotLoaded, "no default cipher suite registered")
	}
	return r.Suite(id)
}

func (r *registry) Engine(name string) (*CryptEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, herr.New(herr.Crypt, herr.ErrPluginNotLoaded, "unknown crypt engine "+name)
	}
	return e, nil
}

func (r *registry) DefaultEngine() (*CryptEngine, error) {
	r.mu.RLock()
	name := r.defaultEngine
	r.mu.RUnlock()
	if name == "" {
		return nil, herr.New(herr.Crypt, herr.ErrPluginNotLoaded, "no default crypt engine registered")
	}
	return r.Engine(name)
}

// Reset clears the registry; exposed for test isolation and the spec's
// "explicit init/reset entry points" note on global singletons (§9).
func (r *registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suites = map[string]*CipherSuite{}
	r.engines = map[string]*CryptEngine{}
	r.defaultSuite = ""
	r.defaultEngine = ""
}
