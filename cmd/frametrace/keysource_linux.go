//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EVIOCGKEY(len) from <linux/input.h>: _IOC(_IOC_READ, 'E', 0x18, len).
func eviocgkey(length int) uintptr {
	const (
		iocRead      = 2
		iocDirShift  = 30
		iocSizeShift = 16
		iocTypeShift = 8
	)
	return uintptr(iocRead<<iocDirShift | length<<iocSizeShift | 'E'<<iocTypeShift | 0x18)
}

// evdevSource reads the current key bitmap of one or more evdev devices with
// the EVIOCGKEY ioctl. The query is synchronous and does not consume the
// device's event stream, so other readers are unaffected.
//
// The active set is the union across devices. A device whose ioctl fails
// contributes nothing for that attempt.
type evdevSource struct {
	files   []*os.File
	fds     []uintptr
	failing []bool
	logger  *slog.Logger
}

// openEvdevSource opens every device path for reading.
func openEvdevSource(paths []string, logger *slog.Logger) (*evdevSource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input devices provided")
	}
	s := &evdevSource{logger: logger}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		var probe KeySet
		if err := readKeyBitmap(f.Fd(), &probe); err != nil {
			f.Close()
			s.Close()
			return nil, fmt.Errorf("EVIOCGKEY on %s: %w (is it an evdev device?)", p, err)
		}
		s.files = append(s.files, f)
		s.fds = append(s.fds, f.Fd())
		s.failing = append(s.failing, false)
	}
	return s, nil
}

func readKeyBitmap(fd uintptr, bits *KeySet) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgkey(len(bits)), uintptr(unsafe.Pointer(&bits[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

// Active implements KeySource.
func (s *evdevSource) Active() KeySet {
	var out KeySet
	for i, fd := range s.fds {
		var bits KeySet
		if err := readKeyBitmap(fd, &bits); err != nil {
			if !s.failing[i] {
				s.failing[i] = true
				s.logger.Debug("key state query failed; treating device as idle", "device", s.files[i].Name(), "error", err)
			}
			continue
		}
		if s.failing[i] {
			s.failing[i] = false
			s.logger.Debug("key state query recovered", "device", s.files[i].Name())
		}
		out.Union(&bits)
	}
	return out
}

// Close releases the device handles.
func (s *evdevSource) Close() error {
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.files = nil
	s.fds = nil
	return firstErr
}
