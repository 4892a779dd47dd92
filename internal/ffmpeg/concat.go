package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteConcatList writes a concat-demuxer file list into dir and returns its
// path. Paths are absolute and single quotes are escaped the way the demuxer
// expects.
func WriteConcatList(dir string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("concat: no input files")
	}

	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("concat: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(abs))
	}

	listPath := filepath.Join(dir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("concat: write list: %w", err)
	}
	return listPath, nil
}

// ConcatArgs builds the lossless stream-copy concatenation invocation.
func ConcatArgs(listPath, outputPath string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}

// escapeConcatPath escapes single quotes for the concat demuxer: a quoted
// string is closed, an escaped quote emitted, and the string reopened.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, `'`, `'\''`)
}
