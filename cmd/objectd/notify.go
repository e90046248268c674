package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotifier reports control loop progress to the service manager. Every
// call is a no-op outside systemd.
type sdNotifier struct{}

func (sdNotifier) Ready() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}

func (sdNotifier) Status(status string) error {
	_, err := daemon.SdNotify(false, "STATUS="+status)
	return err
}

func (sdNotifier) NotifyFailure(cause error) error {
	errno := syscall.EIO
	var se syscall.Errno
	if errors.As(cause, &se) {
		errno = se
	}
	_, err := daemon.SdNotify(false, fmt.Sprintf("STATUS=%v\nERRNO=%d", cause, int(errno)))
	return err
}
