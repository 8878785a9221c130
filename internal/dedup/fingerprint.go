package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"curator/internal/services"
)

// Fingerprinter computes a stable identity for a staged file. Two files with
// the same fingerprint are the same content as far as the archive is
// concerned.
type Fingerprinter interface {
	Fingerprint(path string) (string, error)
}

// SHA256Fingerprinter hashes exact file content. Perceptual strategies can
// replace it behind the same interface.
type SHA256Fingerprinter struct{}

func (SHA256Fingerprinter) Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "uploading", "fingerprint", "open staged file", err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", services.Wrap(services.ErrUpload, "uploading", "fingerprint", "read staged file", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
