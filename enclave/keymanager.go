package main

import (
	"crypto/rsa"
	"fmt"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// KeyManager holds the enclave's RSA key pair for confidential commands.
type KeyManager struct {
	privateKey *rsa.PrivateKey // never leaves the enclave
	PublicKey  *rsa.PublicKey
}

// NewKeyManager creates a KeyManager with a fresh RSA key pair.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	return publicKeyToPEM(km.PublicKey)
}

// Decrypt opens a payload encrypted for this enclave.
func (km *KeyManager) Decrypt(payload *enclaveapi.EncryptedPayload) ([]byte, error) {
	if km == nil {
		return nil, fmt.Errorf("no key manager available")
	}
	return DecryptPayload(payload, km.privateKey)
}

// HandleKeyRequest returns the public key together with an attestation binding it to this enclave.
func HandleKeyRequest(attester EnclaveAttester, keyManager *KeyManager) (*enclaveapi.KeyResponse, error) {
	if keyManager == nil {
		return nil, fmt.Errorf("no key manager available")
	}

	publicKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	attestation, err := GenerateKeyAttestation(attester, keyManager.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}

	return &enclaveapi.KeyResponse{
		Type:                  "key_response",
		PublicKey:             publicKeyPEM,
		AttestationCOSEBase64: attestation.EncodeBase64(),
	}, nil
}
