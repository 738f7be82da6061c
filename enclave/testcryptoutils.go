package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/cloudx-io/auctioncontract/enclaveapi"
)

// EncryptPayload encrypts plaintext for the given public key the way clients submitting
// confidential commands do. Used by tests only.
func EncryptPayload(plaintext []byte, publicKey *rsa.PublicKey, hashAlg HashAlgorithm) (*enclaveapi.EncryptedPayload, error) {
	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey := make([]byte, aesKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("failed to generate AES key: %w", err)
	}

	aesgcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	encryptedKey, err := rsa.EncryptOAEP(hasher, rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt AES key: %w", err)
	}

	return &enclaveapi.EncryptedPayload{
		AESKeyEncrypted:  base64.StdEncoding.EncodeToString(encryptedKey),
		EncryptedPayload: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:            base64.StdEncoding.EncodeToString(nonce),
		HashAlgorithm:    string(hashAlg),
	}, nil
}
