// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func TestIsFatalFsnotifyError_Unix(t *testing.T) {
	t.Parallel()

	for _, errno := range []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE} {
		if !isFatalFsnotifyError(errno) {
			t.Errorf("%v should be fatal", errno)
		}
		if wrapped := fmt.Errorf("inotify_add_watch: %w", errno); !isFatalFsnotifyError(wrapped) {
			t.Errorf("wrapped %v should be fatal", errno)
		}
	}
	for _, err := range []error{syscall.EPERM, syscall.EACCES, errors.New("queue overflow")} {
		if isFatalFsnotifyError(err) {
			t.Errorf("%v should not be fatal", err)
		}
	}
}

func TestRun_StopsOnWatchLimit(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	w.fsw.Errors <- syscall.ENOSPC

	select {
	case err := <-errCh:
		if !errors.Is(err, syscall.ENOSPC) {
			t.Errorf("Run() = %v, want ENOSPC", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() kept going after a fatal error")
	}
}
