package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/hatn-go/hatn/pkg/herr"
)

// CertSpec describes the certificate a suite should mint. It generalizes
// pkg/security/ca.go's hardcoded "Warren Cluster"/node-role template into
// caller-supplied fields.
type CertSpec struct {
	CommonName  string
	Org         string
	DNSNames    []string
	IPAddresses []net.IP
	Validity    time.Duration
	IsCA        bool
	KeySize     int // RSA modulus bits; defaults to 2048
}

// X509Certificate pairs an issued certificate with the SecureKey holding
// its private key, matching the *tls.Certificate + cached *rsa.PrivateKey
// pairing pkg/security/ca.go builds per issued node/client cert.
type X509Certificate struct {
	Cert *x509.Certificate
	DER  []byte
	Key  *SecureKey
}

func randomSerial() (*big.Int, error) {
	sn, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "generating certificate serial number", err)
	}
	return sn, nil
}

// CreateX509Certificate issues a self-signed certificate from spec,
// generalizing pkg/security/ca.go's Initialize (root CA, self-signed) when
// issuer is nil, or IssueNodeCertificate/IssueClientCertificate (signed by
// an existing CA) when issuer is non-nil.
func (s *CipherSuite) CreateX509Certificate(spec CertSpec, issuer *X509Certificate) (*X509Certificate, error) {
	keySize := spec.KeySize
	if keySize == 0 {
		keySize = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "generating certificate key", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	validity := spec.Validity
	if validity == 0 {
		validity = 90 * 24 * time.Hour
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{spec.Org},
			CommonName:   spec.CommonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(validity),
		DNSNames:              spec.DNSNames,
		IPAddresses:           spec.IPAddresses,
		BasicConstraintsValid: true,
	}
	if spec.IsCA {
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
		template.IsCA = true
		template.MaxPathLenZero = false
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth}
	}

	parent := template
	signingKey := key
	if issuer != nil {
		parent = issuer.Cert
		ik, ok := issuer.Key.Native.(*rsa.PrivateKey)
		if !ok {
			return nil, herr.New(herr.Crypt, herr.ErrInvalidAlgorithm, "issuer certificate key is not an RSA private key")
		}
		signingKey = ik
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signingKey)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "creating X.509 certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "parsing issued X.509 certificate", err)
	}

	return &X509Certificate{
		Cert: cert,
		DER:  der,
		Key:  NewSecureKeyFromNative(RoleEncryptAsymmetric|RoleSign, key),
	}, nil
}

// CreateX509CertificateChain issues a leaf certificate signed by a freshly
// minted CA, the two-certificate chain pkg/security/ca.go effectively
// builds once (Initialize for the root, then IssueNodeCertificate/
// IssueClientCertificate for each leaf), returned here as a single call.
func (s *CipherSuite) CreateX509CertificateChain(caSpec, leafSpec CertSpec) ([]*X509Certificate, error) {
	caSpec.IsCA = true
	ca, err := s.CreateX509Certificate(caSpec, nil)
	if err != nil {
		return nil, err
	}
	leaf, err := s.CreateX509Certificate(leafSpec, ca)
	if err != nil {
		return nil, err
	}
	return []*X509Certificate{leaf, ca}, nil
}

// CertStore holds a root of trust plus a cache of issued leaf certificates,
// generalizing pkg/security/ca.go's CertAuthority (rootCert/rootKey plus
// certCache) into a suite-agnostic component any CipherSuite can produce.
type CertStore struct {
	Root  *X509Certificate
	cache map[string]*X509Certificate
	pool  *x509.CertPool
}

// CreateX509CertificateStore builds a CertStore rooted at a freshly minted
// CA certificate from caSpec.
func (s *CipherSuite) CreateX509CertificateStore(caSpec CertSpec) (*CertStore, error) {
	caSpec.IsCA = true
	root, err := s.CreateX509Certificate(caSpec, nil)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(root.Cert)
	return &CertStore{Root: root, cache: map[string]*X509Certificate{}, pool: pool}, nil
}

// Issue mints a leaf certificate signed by the store's root and caches it
// under id, matching CertAuthority.cacheCertificate.
func (s *CipherSuite) Issue(store *CertStore, id string, leafSpec CertSpec) (*X509Certificate, error) {
	leafSpec.IsCA = false
	leaf, err := s.CreateX509Certificate(leafSpec, store.Root)
	if err != nil {
		return nil, err
	}
	store.cache[id] = leaf
	return leaf, nil
}

// Cached retrieves a previously issued certificate by id.
func (store *CertStore) Cached(id string) (*X509Certificate, bool) {
	c, ok := store.cache[id]
	return c, ok
}

// Verify checks cert against the store's root of trust, matching
// CertAuthority.VerifyCertificate.
func (store *CertStore) Verify(cert *x509.Certificate) error {
	opts := x509.VerifyOptions{
		Roots:     store.pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "certificate verification failed", err)
	}
	return nil
}
