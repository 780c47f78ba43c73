package backup

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// codec applies the independent, composable storage options: gzip
// compression and AES-256-GCM encryption. Compression is dropped for
// inputs it cannot shrink; encryption always pairs with the GCM
// authentication tag, so a wrong key or tampered ciphertext fails
// verification.
type codec struct {
	compress bool
	key      []byte // 32 bytes when encryption is enabled, nil otherwise
}

func newCodec(compress bool, passphrase string) codec {
	c := codec{compress: compress}
	if passphrase != "" {
		key := sha256.Sum256([]byte(passphrase))
		c.key = key[:]
	}
	return c
}

// encode transforms plaintext for storage and reports which transforms
// were actually applied.
func (c codec) encode(plain []byte) (data []byte, compressed, encrypted bool, err error) {
	data = plain

	if c.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err = zw.Write(plain); err != nil {
			return nil, false, false, fmt.Errorf("compressing backup: %w", err)
		}
		if err = zw.Close(); err != nil {
			return nil, false, false, fmt.Errorf("compressing backup: %w", err)
		}
		// Store compressed only when it actually shrinks the content;
		// trivial inputs stay raw.
		if buf.Len() < len(plain) {
			data = buf.Bytes()
			compressed = true
		}
	}

	if c.key != nil {
		data, err = c.seal(data)
		if err != nil {
			return nil, false, false, err
		}
		encrypted = true
	}

	return data, compressed, encrypted, nil
}

// decode reverses encode for a stored backup.
func (c codec) decode(data []byte, compressed, encrypted bool) ([]byte, error) {
	var err error

	if encrypted {
		if c.key == nil {
			return nil, fmt.Errorf("backup is encrypted and no key is configured")
		}
		data, err = c.open(data)
		if err != nil {
			return nil, err
		}
	}

	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompressing backup: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompressing backup: %w", err)
		}
	}

	return data, nil
}

// seal encrypts with AES-256-GCM, prepending the nonce.
func (c codec) seal(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

// open decrypts a sealed payload. Authentication failure covers both
// wrong keys and tampered ciphertext.
func (c codec) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, payload := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting backup: %w", err)
	}
	return plain, nil
}

// checksum returns the sha256 digest of content in sha256:<hex> form.
func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("sha256:%x", sum)
}
