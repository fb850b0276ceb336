package cryptfile

import (
	"os"

	"github.com/hatn-go/hatn/pkg/herr"
)

// Delete removes the encrypted file at path (spec.md §4.5 "delete").
func Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "deleting encrypted file", err)
	}
	return nil
}

// Rename moves an encrypted file from oldPath to newPath (spec.md §4.5
// "rename").
func Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "renaming encrypted file", err)
	}
	return nil
}

// ListDir lists the entry names of dir (spec.md §4.5 "listDir"); the
// directory structure itself carries no ciphertext, only the files within
// it do.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "listing directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
