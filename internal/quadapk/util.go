package quadapk

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}

// hostTag names the NDK prebuilt directory for the running host.
func hostTag() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin-x86_64"
	case "windows":
		return "windows-x86_64"
	default:
		return "linux-x86_64"
	}
}

// exeSuffix is appended to native executables on the host.
func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// batSuffix is appended to SDK script tools on the host.
func batSuffix() string {
	if runtime.GOOS == "windows" {
		return ".bat"
	}
	return ""
}

// scriptCommand builds a command for a tool that may be a script wrapper.
// Windows script tools cannot be spawned directly and go through cmd /C.
func scriptCommand(path string, args ...string) *exec.Cmd {
	if runtime.GOOS == "windows" && strings.HasSuffix(strings.ToLower(path), ".bat") {
		full := append([]string{"/C", path}, args...)
		return exec.Command("cmd", full...)
	}
	return exec.Command(path, args...)
}

// classpathSeparator is the javac -classpath entry separator on the host.
func classpathSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// collectFiles walks root and returns every regular file with the given
// extension, in lexical walk order.
func collectFiles(root, ext string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// newStepBar returns a progress bar for n discrete steps, or nil when
// stderr is not an interactive terminal. Callers must tolerate nil.
func newStepBar(n int, desc string) *progressbar.ProgressBar {
	fd := int(os.Stderr.Fd())
	if Quiet || !term.IsTerminal(fd) {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)
}

func barAdd(bar *progressbar.ProgressBar, n int) {
	if bar != nil {
		_ = bar.Add(n)
	}
}

func barFinish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
