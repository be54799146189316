package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store writes rendered documents to a durable directory, addressed by
// receipt number. Writes overwrite, so generation is safe to retry.
type Store struct {
	dir string
}

// NewStore creates the storage directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Write persists the document and returns its path and size.
func (s *Store) Write(receiptNumber string, data []byte) (string, int64, error) {
	path := filepath.Join(s.dir, receiptNumber+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("write receipt %s: %w", receiptNumber, err)
	}
	return path, int64(len(data)), nil
}
