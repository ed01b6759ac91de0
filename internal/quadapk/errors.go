package quadapk

import (
	"fmt"
	"strings"
)

// ToolNotFoundError reports a required external executable that could not
// be located, along with every location that was tried.
type ToolNotFoundError struct {
	Tool     string
	Searched []string
}

func (e *ToolNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("required tool %q not found", e.Tool)
	}
	return fmt.Sprintf("required tool %q not found, searched: %s", e.Tool, strings.Join(e.Searched, ", "))
}

// toolNotFound is a convenience constructor.
func toolNotFound(tool string, searched ...string) error {
	return &ToolNotFoundError{Tool: tool, Searched: searched}
}

// ConfigError marks malformed project or auxiliary configuration. It always
// surfaces before any compilation starts.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("malformed configuration in %s: %v", e.File, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ScratchFileError reports a failure to stage or clean up a temporary
// source file beside the entry point.
type ScratchFileError struct {
	Path string
	Err  error
}

func (e *ScratchFileError) Error() string {
	return fmt.Sprintf("unable to create temporary source file %s: %v (the source directory must be writable; glue code is staged beside the entry point during the build)", e.Path, e.Err)
}

func (e *ScratchFileError) Unwrap() error { return e.Err }
