package utils

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	// Scan() should skip the first garbage bytes and find the JPEG
	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}

	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// Scan() again should return false (EOF) because the trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpegMultipleFrames(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}

	stream := append(append([]byte{}, a...), b...)
	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Expected two frames %X and %X, got %X", a, b, got)
	}
}

func TestFingerprint(t *testing.T) {
	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "clip_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("fake clip content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := Fingerprint(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to fingerprint: %v", err)
	}

	// Verify Determinism
	id2, _ := Fingerprint(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()
	// Some filesystems have coarse mtimes; the size change alone must be enough.
	_ = os.Chtimes(tmp.Name(), time.Now(), time.Now().Add(time.Second))

	id3, _ := Fingerprint(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint("/nonexistent/clip.mp4"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"plain":    "plain",
		"clip[1]":  `clip\[1]`,
		"what?*":   `what\?\*`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range tests {
		if got := EscapeGlob(in); got != want {
			t.Errorf("EscapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeFFprobe puts an ffprobe on PATH that prints nbFrames and logs its
// arguments, one call per line, to the returned file.
func fakeFFprobe(t *testing.T, nbFrames string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	calls := filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\n" +
		"echo \"$*\" >> " + calls + "\n" +
		"echo '{\"streams\":[{\"nb_frames\":\"" + nbFrames + "\"}]}'\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return calls
}

func TestGetTotalFrames(t *testing.T) {
	calls := fakeFFprobe(t, "250")

	if got := GetTotalFrames(context.Background(), "clip.mp4"); got != 250 {
		t.Errorf("GetTotalFrames() = %d, want 250", got)
	}
	data, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("expected 1 ffprobe call, got %d", n)
	}
}

func TestGetTotalFramesDoesNotCountPackets(t *testing.T) {
	calls := fakeFFprobe(t, "N/A")

	if got := GetTotalFrames(context.Background(), "clip.mp4"); got != 0 {
		t.Errorf("GetTotalFrames() = %d, want 0 for unknown count", got)
	}
	data, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "-count_packets") {
		t.Errorf("ffprobe must not be asked to count packets, calls:\n%s", data)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("expected 1 ffprobe call, got %d", n)
	}
}
