package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTargetClosed marks unrecoverable transport loss: the page, session, or
// browser process is gone. It is the only condition allowed to abort a
// multi-item scraping loop; every other failure degrades to a per-item
// status. Callers test with errors.Is.
var ErrTargetClosed = errors.New("browser: target closed")

// transportMarkers are substrings of CDP/websocket errors that mean the
// target is gone rather than an operation merely failing.
var transportMarkers = []string{
	"target closed",
	"target is closed",
	"no target with given id",
	"session closed",
	"session with given id not found",
	"browser has been closed",
	"connection is closed",
	"use of closed network connection",
	"websocket: close",
}

// IsTargetClosed reports whether err signals unrecoverable transport loss.
func IsTargetClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTargetClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transportMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// wrapTransport tags transport-loss errors with ErrTargetClosed so callers
// above the rod layer only ever check one sentinel.
func wrapTransport(err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrTargetClosed) && IsTargetClosed(err) {
		return fmt.Errorf("%w: %v", ErrTargetClosed, err)
	}
	return err
}
