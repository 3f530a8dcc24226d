// Package archive produces the per-borehole zip archives that get published
// to the object store.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Zip writes <name>.zip next to the source file, containing the source file
// under its base name. The zip header is derived from the source file's
// metadata, so an unchanged input produces a byte-identical archive and
// re-uploads are idempotent.
func Zip(srcPath string) (string, error) {
	zipPath := strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".zip"

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", srcPath, err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", zipPath, err)
	}

	if err := writeZip(out, src, info); err != nil {
		out.Close()
		os.Remove(zipPath)
		return "", fmt.Errorf("write %q: %w", zipPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(zipPath)
		return "", fmt.Errorf("close %q: %w", zipPath, err)
	}
	return zipPath, nil
}

func writeZip(out io.Writer, src io.Reader, info os.FileInfo) error {
	zw := zip.NewWriter(out)

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header: %w", err)
	}
	hdr.Name = info.Name()
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return zw.Close()
}
