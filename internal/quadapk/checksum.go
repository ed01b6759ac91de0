package quadapk

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// hashFile computes the BLAKE3 digest of a file. A system b3sum is
// preferred when installed, with the in-process implementation as
// fallback.
func hashFile(path string) (string, error) {
	if b3, err := exec.LookPath("b3sum"); err == nil {
		out, err := exec.Command(b3, path).Output()
		if err == nil {
			fields := strings.Fields(string(out))
			if len(fields) > 0 {
				return fields[0], nil
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// writeChecksumSidecar drops a <name>.b3 file beside an artifact so
// later installs and uploads can verify it without rehashing remotely.
func writeChecksumSidecar(path string) (string, error) {
	sum, err := hashFile(path)
	if err != nil {
		return "", err
	}
	sidecar := path + ".b3"
	content := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(sidecar, []byte(content), 0o644); err != nil {
		return "", err
	}
	return sidecar, nil
}

// verifyChecksumSidecar recomputes an artifact's hash and compares it
// against the recorded sidecar. A missing sidecar is not an error; a
// mismatch is.
func verifyChecksumSidecar(path string) error {
	data, err := os.ReadFile(path + ".b3")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("empty checksum sidecar for %s", path)
	}
	want := fields[0]

	got, err := hashFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: recorded %s, computed %s", path, want, got)
	}
	return nil
}
