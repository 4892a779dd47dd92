package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "clip-1.mp4")
	b := filepath.Join(dir, "clip-2.mp4")

	listPath, err := WriteConcatList(dir, []string{a, b})
	if err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", len(lines), string(data))
	}
	if lines[0] != "file '"+a+"'" {
		t.Errorf("first entry = %q, want file '%s'", lines[0], a)
	}
	if lines[1] != "file '"+b+"'" {
		t.Errorf("second entry = %q, want file '%s'", lines[1], b)
	}
}

func TestWriteConcatListEmpty(t *testing.T) {
	if _, err := WriteConcatList(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error for empty input list")
	}
}

func TestEscapeConcatPath(t *testing.T) {
	got := escapeConcatPath("/work/it's a clip.mp4")
	want := `/work/it'\''s a clip.mp4`
	if got != want {
		t.Errorf("escapeConcatPath = %q, want %q", got, want)
	}
}

func TestConcatArgsStreamCopy(t *testing.T) {
	args := strings.Join(ConcatArgs("list.txt", "out.mp4"), " ")

	for _, want := range []string{"-f concat", "-safe 0", "-i list.txt", "-c copy", "out.mp4"} {
		if !strings.Contains(args, want) {
			t.Errorf("concat args missing %q: %s", want, args)
		}
	}
	if strings.Contains(args, "-c:v") {
		t.Errorf("concat must not re-encode: %s", args)
	}
}
