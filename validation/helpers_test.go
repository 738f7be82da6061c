package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

var testPCRs = map[uint64][]byte{
	0: {0x3b, 0x4c, 0xef, 0x27},
	1: {0x4b, 0x4d, 0x5b, 0x36},
	2: {0x2b, 0xdd, 0x28, 0xc1},
}

func knownTestPCRs() []PCRSet {
	return []PCRSet{
		{PCR0: "00", PCR1: "00", PCR2: "00", CommitHash: "stale"},
		{PCR0: "3b4cef27", PCR1: "4b4d5b36", PCR2: "2bdd28c1", CommitHash: "abc123"},
	}
}

// testAuthority is a throwaway P-384 root and leaf standing in for the Nitro PKI.
type testAuthority struct {
	rootPEM string
	rootDER []byte
	leafDER []byte
	leafKey *ecdsa.PrivateKey
}

func newTestAuthority(t *testing.T) *testAuthority {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test-enclave"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	return &testAuthority{
		rootPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})),
		rootDER: rootDER,
		leafDER: leafDER,
		leafKey: leafKey,
	}
}

func (a *testAuthority) options() Options {
	return Options{KnownPCRs: knownTestPCRs(), RootCAPEM: a.rootPEM}
}

// attest returns a signed, untagged COSE_Sign1 attestation embedding userData.
func (a *testAuthority) attest(t *testing.T, userData any) enclaveapi.AttestationCOSEBase64 {
	t.Helper()

	userDataBytes, err := json.Marshal(userData)
	assert.NoError(t, err)

	payload, err := cbor.Marshal(map[string]any{
		"module_id":   "test-enclave-12345",
		"digest":      "SHA384",
		"timestamp":   uint64(time.Now().UnixMilli()),
		"pcrs":        testPCRs,
		"certificate": a.leafDER,
		"cabundle":    [][]byte{a.rootDER},
		"public_key":  []byte{},
		"user_data":   userDataBytes,
		"nonce":       []byte("nonce"),
	})
	assert.NoError(t, err)

	protected, err := cbor.Marshal(map[int]int{1: int(cose.AlgorithmES384)})
	assert.NoError(t, err)

	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	assert.NoError(t, err)

	signer, err := cose.NewSigner(cose.AlgorithmES384, a.leafKey)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.NoError(t, err)

	coseBytes, err := cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
	assert.NoError(t, err)
	return enclaveapi.AttestationCOSE(coseBytes).EncodeBase64()
}
