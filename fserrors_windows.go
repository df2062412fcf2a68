//go:build windows

package autoextract

import (
	"errors"
	"syscall"
)

const (
	errorSharingViolation   syscall.Errno = 32
	errorLockViolation      syscall.Errno = 33
	errorHandleDiskFull     syscall.Errno = 39
	errorDiskFull           syscall.Errno = 112
	errorFilenameExcedRange syscall.Errno = 206
)

func isLockedError(err error) bool {
	return errors.Is(err, errorSharingViolation) || errors.Is(err, errorLockViolation)
}

func isDiskFullError(err error) bool {
	return errors.Is(err, errorDiskFull) || errors.Is(err, errorHandleDiskFull)
}

func isNameTooLongError(err error) bool {
	return errors.Is(err, errorFilenameExcedRange)
}
