package credentials

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// readInvalidFile reads the persisted invalid set. A missing file is reported
// with fs.ErrNotExist; a malformed file with a *json.SyntaxError or
// *json.UnmarshalTypeError. The raw bytes are returned for change detection.
func readInvalidFile(path string) ([]string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var cookies []string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, data, err
	}
	return cookies, data, nil
}

// encodeInvalidSet renders the set as a sorted JSON array with two-space
// indentation, the format the management console has always written.
func encodeInvalidSet(set map[string]struct{}) ([]byte, error) {
	cookies := make([]string, 0, len(set))
	for c := range set {
		cookies = append(cookies, c)
	}
	sort.Strings(cookies)

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode invalid cookies: %w", err)
	}
	return data, nil
}

// writeFileAtomic replaces path with data via a temp file and rename in the
// same directory, so readers never see a partial array.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	tmpName = ""
	return nil
}

func contentHash(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
