package autoextract

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// PasswordProvider supplies the ordered candidates to try for one archive.
// The sequence may be empty.
type PasswordProvider interface {
	Passwords(ctx context.Context, archivePath string) ([]string, error)
}

// PasswordProviderFunc adapts a function to PasswordProvider.
type PasswordProviderFunc func(ctx context.Context, archivePath string) ([]string, error)

// Passwords calls f.
func (f PasswordProviderFunc) Passwords(ctx context.Context, archivePath string) ([]string, error) {
	return f(ctx, archivePath)
}

// StaticPasswords returns the same list for every archive.
type StaticPasswords []string

// Passwords returns the list.
func (s StaticPasswords) Passwords(context.Context, string) ([]string, error) {
	return append([]string(nil), s...), nil
}

// MappedPasswords picks passwords by keywords found in the archive file name.
// A value may hold several passwords separated by "|".
type MappedPasswords map[string]string

// Passwords returns the candidates of every keyword contained in the archive
// name, longest keyword first.
func (m MappedPasswords) Passwords(_ context.Context, archivePath string) ([]string, error) {
	name := strings.ToLower(filepath.Base(archivePath))

	keywords := make([]string, 0, len(m))
	for keyword := range m {
		if keyword != "" && strings.Contains(name, strings.ToLower(keyword)) {
			keywords = append(keywords, keyword)
		}
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})

	var passwords []string
	for _, keyword := range keywords {
		passwords = append(passwords, SplitPasswords(m[keyword])...)
	}
	return RemoveDuplicateStrings(passwords), nil
}

// SplitPasswords splits a "a|b|c" list, dropping blanks.
func SplitPasswords(value string) []string {
	var out []string
	for _, p := range strings.Split(value, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BuiltinPasswords is a short list of passwords common on file sharing forums.
func BuiltinPasswords() StaticPasswords {
	return StaticPasswords{
		"1",
		"123456",
		"123",
		"password",
		"12345",
		"1234",
		"0",
		"admin",
		"123456789",
		"qwerty",
	}
}

// ChainPasswords concatenates providers in order, dropping repeats.
type ChainPasswords []PasswordProvider

// Passwords queries every provider; the first error aborts.
func (c ChainPasswords) Passwords(ctx context.Context, archivePath string) ([]string, error) {
	var all []string
	for _, p := range c {
		if p == nil {
			continue
		}
		pw, err := p.Passwords(ctx, archivePath)
		if err != nil {
			return nil, err
		}
		all = append(all, pw...)
	}
	return RemoveDuplicateStrings(all), nil
}

// passwordCandidates orders the attempts for one archive: the given
// passwords in order, then no password.
func passwordCandidates(passwords []string) []string {
	candidates := make([]string, 0, len(passwords)+1)
	for _, p := range passwords {
		if p != "" {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, "")
	return RemoveDuplicateStrings(candidates)
}

// isPasswordError guesses from the message whether a decoder failed because
// of a missing or wrong password.
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}

	errorMsg := strings.ToLower(err.Error())
	passwordKeywords := []string{
		"password",
		"encrypted",
		"decrypt",
		"no key",
		"bad key",
	}
	for _, keyword := range passwordKeywords {
		if strings.Contains(errorMsg, keyword) {
			return true
		}
	}

	return IsErrorType(err, ErrWrongPassword)
}
