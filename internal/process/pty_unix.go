//go:build !windows

package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

func runPTY(ctx context.Context, cmd *exec.Cmd) ([]byte, bool, error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, cmd.Process != nil, err
	}
	defer f.Close()

	// Killing the child does not end the read while a grandchild still holds
	// the terminal, so cancellation closes our side too.
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer stop()

	var buf bytes.Buffer
	// Linux reports EIO once the child side of the pty closes.
	if _, err := io.Copy(&buf, f); err != nil && !errors.Is(err, syscall.EIO) && ctx.Err() == nil {
		_ = cmd.Wait()
		return buf.Bytes(), true, err
	}

	waitErr := cmd.Wait()
	return bytes.ReplaceAll(buf.Bytes(), []byte("\r\n"), []byte("\n")), true, waitErr
}
