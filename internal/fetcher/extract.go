package fetcher

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// store writes the archive bytes next to dest, extracts its CSV member to
// dest and removes the archive again.
func (f *Fetcher) store(archive []byte, dest string) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".archive-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(archive); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}

	return extractCSV(tmpName, dest)
}

func extractCSV(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, member := range zr.File {
		if member.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(member.Name), ".csv") {
			continue
		}
		return writeMember(member, dest)
	}
	return fmt.Errorf("archive %s has no csv member", filepath.Base(archivePath))
}

func writeMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".extract-*.csv")
	if err != nil {
		return fmt.Errorf("create temp csv: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return fmt.Errorf("extract member %s: %w", member.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp csv: %w", err)
	}
	return os.Rename(tmpName, dest)
}
