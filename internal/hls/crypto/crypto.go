// Package crypto decrypts AES-128-CBC protected HLS segments.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// Sentinel errors, matching the HLS key descriptor failure modes.
var (
	ErrKeyLength     = errors.New("crypto: key must be exactly 16 bytes")
	ErrIVLength      = errors.New("crypto: iv must be exactly 16 bytes")
	ErrIvMissing     = errors.New("crypto: iv is required and was not provided")
	ErrDecryptFailed = errors.New("crypto: decryption produced invalid plaintext")
)

// DecryptAES128CBC decrypts ciphertext encrypted with AES-128 in CBC mode
// and strips PKCS7 padding. key and iv must each be exactly 16 bytes; iv
// must be non-nil (this package never synthesizes an IV from a segment
// sequence number, unlike some HLS sources' fallback behavior).
func DecryptAES128CBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}
	if iv == nil {
		return nil, ErrIvMissing
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("%w: got %d", ErrIVLength, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of block size", ErrDecryptFailed, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: constructing cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext)
}

// unpadPKCS7 strips PKCS7 padding, validating that the padding byte is
// consistent with the buffer length.
func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrDecryptFailed
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > len(data) {
		return nil, fmt.Errorf("%w: invalid padding byte %d", ErrDecryptFailed, padding)
	}

	padStart := len(data) - padding
	if !bytes.Equal(data[padStart:], bytes.Repeat([]byte{byte(padding)}, padding)) {
		return nil, fmt.Errorf("%w: inconsistent padding bytes", ErrDecryptFailed)
	}

	plaintext := data[:padStart]
	if len(plaintext) == 0 {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}
