package crypt

import (
	"bytes"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSuite(t *testing.T) (*CipherSuite, string) {
	t.Helper()
	CipherSuites.Reset()
	key := bytes.Repeat([]byte{0x42}, 32)
	suite, err := RegisterStdlibDefaults("stdlib", "test-suite", key)
	require.NoError(t, err)
	return suite, "stdlib"
}

func TestAEADRoundTrip(t *testing.T) {
	suite, eng := testSuite(t)
	enc, err := suite.CreateAEADEncryptor(eng)
	require.NoError(t, err)
	dec, err := suite.CreateAEADDecryptor(eng)
	require.NoError(t, err)

	ct, err := enc.Seal([]byte("hello world"), []byte("aad"))
	require.NoError(t, err)

	pt, err := dec.Open(ct, []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(pt))
}

func TestAEADOpenFailsOnTamper(t *testing.T) {
	suite, eng := testSuite(t)
	enc, _ := suite.CreateAEADEncryptor(eng)
	dec, _ := suite.CreateAEADDecryptor(eng)

	ct, err := enc.Seal([]byte("payload"), nil)
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xFF

	_, err = dec.Open(ct, nil)
	require.Error(t, err)
}

func TestSymmetricRoundTrip(t *testing.T) {
	suite, eng := testSuite(t)
	enc, err := suite.CreateSEncryptor(eng)
	require.NoError(t, err)
	dec, err := suite.CreateSDecryptor(eng)
	require.NoError(t, err)

	ct, err := enc.Encrypt([]byte("symmetric data"))
	require.NoError(t, err)
	pt, err := dec.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "symmetric data", string(pt))
}

func TestDigestIsDeterministic(t *testing.T) {
	suite, eng := testSuite(t)
	digest, err := suite.CreateDigest(eng)
	require.NoError(t, err)

	a := digest.Sum([]byte("hello"))
	b := digest.Sum([]byte("hello"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, digest.Sum([]byte("world")))
}

func TestMACVerify(t *testing.T) {
	suite, eng := testSuite(t)
	mac, err := suite.CreateMAC(eng)
	require.NoError(t, err)

	tag := mac.Sum([]byte("key"), []byte("message"))
	require.True(t, mac.Verify([]byte("key"), []byte("message"), tag))
	require.False(t, mac.Verify([]byte("key"), []byte("tampered"), tag))
}

func TestPBKDFIsDeterministicPerSalt(t *testing.T) {
	suite, eng := testSuite(t)
	kdf, err := suite.CreatePBKDF(eng, "")
	require.NoError(t, err)

	salt := []byte("fixed-salt")
	a, err := kdf.Derive([]byte("password"), salt, 1000, 32)
	require.NoError(t, err)
	b, err := kdf.Derive([]byte("password"), salt, 1000, 32)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := kdf.Derive([]byte("password"), []byte("other-salt"), 1000, 32)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestHKDFDerivesRequestedLength(t *testing.T) {
	suite, eng := testSuite(t)
	kdf, err := suite.CreateHKDF(eng, "")
	require.NoError(t, err)

	out, err := kdf.Derive([]byte("secret"), []byte("salt"), []byte("ctx"), 48)
	require.NoError(t, err)
	require.Len(t, out, 48)
}

func TestSignatureRoundTrip(t *testing.T) {
	suite, eng := testSuite(t)
	signer, err := suite.CreateSignatureSign(eng)
	require.NoError(t, err)
	verifier, err := suite.CreateSignatureVerify(eng)
	require.NoError(t, err)

	store, err := suite.CreateX509CertificateStore(CertSpec{CommonName: "test-root", Org: "hatn-test"})
	require.NoError(t, err)

	sig, err := signer.Sign(store.Root.Key.Native, []byte("message"))
	require.NoError(t, err)

	require.NoError(t, verifier.Verify(store.Root.Cert.PublicKey, []byte("message"), sig))
	require.Error(t, verifier.Verify(store.Root.Cert.PublicKey, []byte("different message"), sig))
}

func TestCreateDHReturnsNotSupported(t *testing.T) {
	suite, _ := testSuite(t)
	_, err := suite.CreateDH("stdlib")
	require.Error(t, err)
}

func TestX509CertificateChainVerifies(t *testing.T) {
	suite, _ := testSuite(t)
	chain, err := suite.CreateX509CertificateChain(
		CertSpec{CommonName: "root", Org: "hatn-test"},
		CertSpec{CommonName: "leaf", Org: "hatn-test"},
	)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	leaf, root := chain[0], chain[1]

	pool := x509.NewCertPool()
	pool.AddCert(root.Cert)
	store := &CertStore{Root: root, cache: map[string]*X509Certificate{}, pool: pool}
	require.NoError(t, store.Verify(leaf.Cert))
}

func TestSecureKeyPEMRoundTrip(t *testing.T) {
	suite, _ := testSuite(t)
	cert, err := suite.CreateX509Certificate(CertSpec{CommonName: "standalone", Org: "hatn-test"}, nil)
	require.NoError(t, err)

	pemBytes, err := cert.Key.packContent(FormatPEM, true)
	require.NoError(t, err)
	require.Contains(t, string(pemBytes), "PRIVATE KEY")

	restored, err := unpackContent(RoleEncryptAsymmetric, FormatPEM, pemBytes)
	require.NoError(t, err)
	require.NotNil(t, restored.Native)
}

func TestSecureKeySealUnseal(t *testing.T) {
	suite, eng := testSuite(t)
	enc, _ := suite.CreateAEADEncryptor(eng)
	dec, _ := suite.CreateAEADDecryptor(eng)

	cert, err := suite.CreateX509Certificate(CertSpec{CommonName: "sealed", Org: "hatn-test"}, nil)
	require.NoError(t, err)

	require.NoError(t, cert.Key.Seal(enc))
	cert.Key.Native = nil
	require.NoError(t, cert.Key.Unseal(dec, RoleEncryptAsymmetric))
	require.NotNil(t, cert.Key.Native)
}
