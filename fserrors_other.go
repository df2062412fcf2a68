//go:build !unix && !windows

package autoextract

func isLockedError(err error) bool { return false }

func isDiskFullError(err error) bool { return false }

func isNameTooLongError(err error) bool { return false }
