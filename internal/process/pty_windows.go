//go:build windows

package process

import (
	"context"
	"os/exec"
)

func runPTY(ctx context.Context, cmd *exec.Cmd) ([]byte, bool, error) {
	return nil, false, ErrPTYUnsupported
}
