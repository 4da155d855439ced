package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// ErrMalformed is returned when sealed data cannot be opened.
var ErrMalformed = errors.New("malformed ciphertext")

// GenerateString returns a random alpha-numeric string of length n.
func GenerateString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	b := make([]rune, n)
	buf := make([]byte, len(b))
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(buf[i])%len(letters)]
	}
	return string(b), nil
}

// EncryptToBase64 encrypts data with AES-CBC and returns base64 ciphertext.
func EncryptToBase64(plaintext []byte, key []byte, iv []byte) (string, error) {
	if !validKey(key) {
		return "", errors.New("key must be 16, 24 or 32 bytes")
	}
	if len(iv) != aes.BlockSize {
		return "", errors.New("iv must be 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plaintext = pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, plaintext)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptFromBase64 reverses EncryptToBase64.
func DecryptFromBase64(encoded string, key []byte, iv []byte) ([]byte, error) {
	if !validKey(key) {
		return nil, errors.New("key must be 16, 24 or 32 bytes")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.New("iv must be 16 bytes")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrMalformed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// Seal encrypts plaintext under key with a fresh random IV and returns "iv.ciphertext",
// both base64.
func Seal(plaintext, key []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	ct, err := EncryptToBase64(plaintext, key, iv)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(iv) + "." + ct, nil
}

// Open reverses Seal.
func Open(sealed string, key []byte) ([]byte, error) {
	ivPart, ctPart, ok := strings.Cut(sealed, ".")
	if !ok {
		return nil, ErrMalformed
	}
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return nil, ErrMalformed
	}
	return DecryptFromBase64(ctPart, key, iv)
}

func validKey(key []byte) bool {
	l := len(key)
	return l == 16 || l == 24 || l == 32
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrMalformed
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, ErrMalformed
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, ErrMalformed
		}
	}
	return data[:len(data)-padding], nil
}
