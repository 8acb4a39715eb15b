package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir ensures the provided directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// SafeWriteFile writes data to a temp file and atomically renames it into place.
func SafeWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// PrettyJSON marshals a value as indented JSON. Non-finite floats become null.
func PrettyJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(JSONSafe(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

// WriteJSON writes v as indented JSON to dir/name, creating dir.
func WriteJSON(dir, name string, v any) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	b, err := PrettyJSON(v)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := SafeWriteFile(path, append(b, '\n')); err != nil {
		return "", err
	}
	return path, nil
}
