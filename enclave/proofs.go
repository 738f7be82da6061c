package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/auctioncontract/core"
	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// generateNonce returns 256 bits of hex-encoded entropy.
func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// attest embeds userData in an NSM attestation with a fresh nonce.
func attest(attester EnclaveAttester, userData any) (enclaveapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return enclaveapi.AttestationCOSE(attestationCBOR), nil
}

// GenerateStateAttestation attests the state hash of a contract. The state hash is bound to the
// contract identifier and a fresh nonce so that an attestation cannot be replayed for another
// contract.
func GenerateStateAttestation(attester EnclaveAttester, id core.ContractID, stateHash string) (enclaveapi.AttestationCOSE, error) {
	stateNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state nonce: %w", err)
	}

	userData := &enclaveapi.StateAttestationUserData{
		ContractID:  id,
		StateHash:   stateHash,
		StateNonce:  stateNonce,
		BindingHash: core.ComputeStateAttestationHash(id, stateHash, stateNonce),
		Timestamp:   time.Now().UTC(),
	}

	attestation, err := attest(attester, userData)
	if err != nil {
		log.Printf("ERROR: State attestation failed for contract %d: %v", id, err)
		return nil, err
	}

	log.Printf("INFO: State attestation generated for contract %d: %d bytes", id, len(attestation))
	return attestation, nil
}

// publicKeyToPEM converts an RSA public key to PEM format
func publicKeyToPEM(publicKey *rsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// GenerateKeyAttestation attests the public key clients use to encrypt commands.
func GenerateKeyAttestation(attester EnclaveAttester, publicKey *rsa.PublicKey) (enclaveapi.AttestationCOSE, error) {
	publicKeyPEM, err := publicKeyToPEM(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key to PEM: %w", err)
	}

	attestation, err := attest(attester, &enclaveapi.KeyAttestationUserData{
		KeyAlgorithm: "RSA-2048",
		PublicKey:    publicKeyPEM,
	})
	if err != nil {
		log.Printf("ERROR: Key attestation failed: %v", err)
		return nil, err
	}

	log.Printf("INFO: Key attestation generated: %d bytes", len(attestation))
	return attestation, nil
}
