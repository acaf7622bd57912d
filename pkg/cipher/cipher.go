package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// Sizes required by AES-128.
const (
	KeySize   = 16
	BlockSize = aes.BlockSize
)

// Cipher errors.
var (
	ErrInvalidKeySize = errors.New("key must be 16 bytes")
	ErrInvalidIVSize  = errors.New("iv must be 16 bytes")
	ErrCiphertextSize = errors.New("ciphertext is not a multiple of the block size")
	ErrInvalidPadding = errors.New("invalid PKCS7 padding")
)

// Cipher encrypts and decrypts CLU datagrams.
type Cipher struct {
	block gocipher.Block
	iv    []byte
}

// New creates a Cipher from raw key and IV bytes.
func New(key, iv []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIVSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES block: %w", err)
	}

	return &Cipher{
		block: block,
		iv:    bytes.Clone(iv),
	}, nil
}

// NewFromBase64 creates a Cipher from base64 encoded key and IV, the form
// used in the device configuration export.
func NewFromBase64(key, iv string) (*Cipher, error) {
	rawKey, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("failed to decode iv: %w", err)
	}
	return New(rawKey, rawIV)
}

// Encrypt pads plaintext with PKCS7 and encrypts it. The input is not modified.
func (c *Cipher) Encrypt(plaintext []byte) []byte {
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	gocipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out
}

// Decrypt decrypts ciphertext and removes the PKCS7 padding.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrCiphertextSize, len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	gocipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	return unpad(out)
}

// pad always appends between 1 and BlockSize bytes, so empty input and
// block-aligned input still produce a full padding block.
func pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
