//go:build unix

package autoextract

import (
	"errors"
	"syscall"
)

func isLockedError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EAGAIN)
}

func isDiskFullError(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

func isNameTooLongError(err error) bool {
	return errors.Is(err, syscall.ENAMETOOLONG)
}
