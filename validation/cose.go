package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
	"github.com/cloudx-io/auctioncontract/enclaveapi/parsing"
)

// VerifyCOSESignature verifies the ES384 signature of an untagged COSE_Sign1 attestation
// against the public key of the base64-encoded signing certificate.
func VerifyCOSESignature(coseBytes enclaveapi.AttestationCOSE, certB64 string) error {
	cert, err := parseCertificateB64(certB64)
	if err != nil {
		return err
	}

	msg, err := parsing.SplitCOSESign1(coseBytes)
	if err != nil {
		return err
	}

	// AWS Nitro signs with ES384 (ECDSA P-384 with SHA-384)
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	sigStructure, err := msg.SigStructure()
	if err != nil {
		return err
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	if err := verifier.Verify(sigStructure, msg.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}
