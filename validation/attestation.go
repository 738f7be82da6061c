package validation

import (
	"fmt"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// validateCommonAttestation performs validation common to all attestation types:
// PCRs against the known sets, the certificate chain at the attestation timestamp,
// and the COSE signature.
func validateCommonAttestation(coseBytes enclaveapi.AttestationCOSE, opts Options) (*BaseValidationResult, error) {
	attestationDoc, _, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{
		ValidationDetails: []string{},
	}

	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, opts.KnownPCRs)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.addDetail(fmt.Sprintf("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash))
		result.addDetail(fmt.Sprintf("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash))
		result.addDetail(fmt.Sprintf("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash))
	} else {
		result.addDetail("PCR measurements valid")
		result.addDetail(fmt.Sprintf("Matched PCR set: #%d (commit: %s)", matchedSet, opts.KnownPCRs[matchedSet].CommitHash))
	}

	switch {
	case attestationDoc.Certificate == "":
		result.addDetail("Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.addDetail("Missing CA bundle")
	default:
		err = ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp, opts.RootCAPEM)
		if err != nil {
			result.addDetail(fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			result.addDetail("Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseBytes, attestationDoc.Certificate); err != nil {
		result.addDetail(fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.addDetail("COSE signature verified")
	}

	return result, nil
}
