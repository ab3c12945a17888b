package wa

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const credFileName = "creds.json"

// FileCredentialStore keeps durable transport credentials on disk, one
// directory per (tenant, device) pair under a configured root.
type FileCredentialStore struct {
	root string
}

func NewFileCredentialStore(root string) *FileCredentialStore {
	return &FileCredentialStore{root: root}
}

// Dir returns the credential directory for a device. The tenant segment is
// optional for legacy single-tenant layouts.
func (s *FileCredentialStore) Dir(tenant, device string) string {
	if tenant == "" {
		return filepath.Join(s.root, device)
	}
	return filepath.Join(s.root, tenant, device)
}

// Ensure creates the credential directory if it does not exist
func (s *FileCredentialStore) Ensure(tenant, device string) error {
	if err := os.MkdirAll(s.Dir(tenant, device), 0o755); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	return nil
}

// Exists reports whether a stored credential snapshot is present
func (s *FileCredentialStore) Exists(tenant, device string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(tenant, device), credFileName))
	return err == nil
}

// Load reads the credential snapshot. A missing file yields nil bytes and no
// error: the session starts a fresh pairing.
func (s *FileCredentialStore) Load(tenant, device string) ([]byte, error) {
	blob, err := os.ReadFile(filepath.Join(s.Dir(tenant, device), credFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return blob, nil
}

// Save atomically replaces the credential snapshot
func (s *FileCredentialStore) Save(tenant, device string, blob []byte) error {
	if err := s.Ensure(tenant, device); err != nil {
		return err
	}
	dir := s.Dir(tenant, device)
	tmp := filepath.Join(dir, credFileName+".tmp")
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, credFileName)); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Delete removes the device's credential directory entirely
func (s *FileCredentialStore) Delete(tenant, device string) error {
	if err := os.RemoveAll(s.Dir(tenant, device)); err != nil {
		return fmt.Errorf("failed to delete credential dir: %w", err)
	}
	return nil
}

// Purge removes credential files for devices not present in keep, returning
// the number of directories removed. Keys in keep are tenant-relative device
// ids.
func (s *FileCredentialStore) Purge(tenant string, keep map[string]bool) (int, error) {
	base := s.root
	if tenant != "" {
		base = filepath.Join(s.root, tenant)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan credential root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to purge credential dir %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
