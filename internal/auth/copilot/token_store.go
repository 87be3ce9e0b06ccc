package copilot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/auth"
	log "github.com/sirupsen/logrus"
)

// FileTokenStore keeps the GitHub token as a plain text file readable only by its owner.
type FileTokenStore struct {
	Path string
}

var _ auth.TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore returns a store backed by path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) Load() (string, error) {
	if s == nil || s.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("copilot: failed to read github token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileTokenStore) Save(token string) error {
	if s == nil || s.Path == "" {
		return fmt.Errorf("copilot: github token file path is empty")
	}
	log.Infof("saving github token to %s", filepath.Clean(s.Path))
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("copilot: failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("copilot: failed to write github token: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return fmt.Errorf("copilot: failed to restrict github token file: %w", err)
	}
	return nil
}
