package quadapk

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Executor provides a consistent interface for executing external tools,
// handling cancellation and process-group cleanup in one place.
type Executor struct {
	Context context.Context // The context to use for cancellation
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// Run executes the given command with inherited stdio unless the caller
// wired its own. The child runs in its own process group so that a
// cancelled context tears down the whole tool subtree.
func (e *Executor) Run(cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// --- Phase 1: rebuild under the executor context ---
	finalCmd := exec.CommandContext(e.Context, cmd.Path, cmd.Args[1:]...)
	finalCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	setProcessGroup(finalCmd)

	// --- Phase 2: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Args[0], err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-e.Context.Done():
			killProcessGroup(finalCmd)
		case <-done:
		}
	}()

	// --- Phase 3: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", e.Context.Err())
		}
		return waitErr
	}
	return nil
}

// RunCaptured executes the command with combined output captured. On a
// non-zero exit the captured output is folded into the returned error so
// the caller can surface the tool's own words.
func (e *Executor) RunCaptured(cmd *exec.Cmd) ([]byte, error) {
	var buf bytes.Buffer
	cmd.Stdin = bytes.NewReader(nil)
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := e.Run(cmd); err != nil {
		out := bytes.TrimSpace(buf.Bytes())
		if len(out) > 0 {
			return buf.Bytes(), fmt.Errorf("%s failed: %w\n%s", cmd.Args[0], err, out)
		}
		return buf.Bytes(), fmt.Errorf("%s failed: %w", cmd.Args[0], err)
	}
	return buf.Bytes(), nil
}

// RunTool picks streaming or captured execution based on verbosity: with
// --verbose the tool's output goes straight to the terminal, otherwise it
// is captured and only shown on failure.
func (e *Executor) RunTool(cmd *exec.Cmd) error {
	if Verbose {
		return e.Run(cmd)
	}
	_, err := e.RunCaptured(cmd)
	return err
}
