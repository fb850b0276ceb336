package rpc

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/hatn-go/hatn/pkg/crypt"
	"github.com/hatn-go/hatn/pkg/herr"
)

// tlsCertificate converts a crypt.X509Certificate directly into a
// tls.Certificate, skipping the PEM round trip pkg/client/client.go and
// pkg/security/certs.go use to load certificates from disk: the DER bytes
// and native private key are already in memory.
func tlsCertificate(xc *crypt.X509Certificate) tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{xc.DER},
		PrivateKey:  xc.Key.Native,
		Leaf:        xc.Cert,
	}
}

// newMTLSConfig builds a tls.Config for either client or server use,
// grounded on pkg/client/client.go's connectWithMTLS and pkg/api/server.go's
// server-side mTLS setup, generalized from gRPC credentials to a raw
// tls.Config any net.Listener/net.Dial caller can use. Peer verification is
// delegated to store.Verify since CertStore's x509.CertPool is unexported
// and has no accessor; InsecureSkipVerify only disables Go's own built-in
// chain check, the custom VerifyPeerCertificate performs the real one.
func newMTLSConfig(local *crypt.X509Certificate, store *crypt.CertStore, isServer bool) *tls.Config {
	cfg := &tls.Config{
		Certificates:       []tls.Certificate{tlsCertificate(local)},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return herr.New(herr.Api, herr.ErrInvalidArg, "peer presented no certificate")
			}
			leaf, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return herr.Wrap(herr.Crypt, herr.ErrCryptGeneralFail, "parsing peer certificate", err)
			}
			return store.Verify(leaf)
		},
	}
	if isServer {
		cfg.ClientAuth = tls.RequireAnyClientCert
	}
	return cfg
}
