package crypt

// RegisterStdlibDefaults installs the stdlib plugin as a named engine and
// registers a CipherSuite using its conventional algorithm names,
// mirroring the way pkg/security hardcodes AES-256-GCM/RSA/SHA-256 at
// process start; here that choice is expressed as data registered once
// instead of baked into call sites.
func RegisterStdlibDefaults(engineName, suiteID string, masterKey []byte) (*CipherSuite, error) {
	plugin, err := NewStdlibPlugin(masterKey)
	if err != nil {
		return nil, err
	}
	CipherSuites.RegisterEngine(engineName, &CryptEngine{Plugin: plugin})

	suite := NewCipherSuite(suiteID).
		WithAEAD(AlgNameAES256GCM).
		WithSymmetric(AlgNameAES256CTR).
		WithDigest(AlgNameSHA256).
		WithMAC(AlgNameHMACSHA256).
		WithPBKDF(AlgNamePBKDF2SHA256).
		WithHKDFDigest(AlgNameHKDFSHA256).
		WithSignature(AlgNameRSAPSS)
	CipherSuites.RegisterSuite(suite)
	return suite, nil
}
