package autoextract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappedPasswords(t *testing.T) {
	m := MappedPasswords{
		"forum":      "f1|f2",
		"forumextra": "x1 | f1",
		"other":      "o1",
		"":           "never",
	}

	got, err := m.Passwords(t.Context(), "/dl/ForumExtra-pack.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "f1", "f2"}, got, "longest keyword first, repeats dropped")

	got, err = m.Passwords(t.Context(), "/dl/unrelated.zip")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSplitPasswords(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitPasswords(" a || b c |d|"))
	assert.Nil(t, SplitPasswords(""))
}

func TestChainPasswords(t *testing.T) {
	chain := ChainPasswords{
		StaticPasswords{"a", "b"},
		nil,
		PasswordProviderFunc(func(context.Context, string) ([]string, error) {
			return []string{"b", "c"}, nil
		}),
	}
	got, err := chain.Passwords(t.Context(), "x.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	failing := ChainPasswords{
		StaticPasswords{"a"},
		PasswordProviderFunc(func(context.Context, string) ([]string, error) {
			return nil, errors.New("vault locked")
		}),
	}
	_, err = failing.Passwords(t.Context(), "x.zip")
	assert.EqualError(t, err, "vault locked")
}

func TestStaticPasswordsReturnsCopy(t *testing.T) {
	s := StaticPasswords{"a"}
	got, _ := s.Passwords(t.Context(), "x")
	got[0] = "changed"
	assert.Equal(t, "a", s[0])
}

func TestPasswordCandidates(t *testing.T) {
	assert.Equal(t, []string{""}, passwordCandidates(nil))
	assert.Equal(t, []string{"a", "b", ""}, passwordCandidates([]string{"a", "", "b", "a"}))
}

func TestIsPasswordError(t *testing.T) {
	assert.True(t, isPasswordError(errors.New("zip: invalid password")))
	assert.True(t, isPasswordError(errors.New("rardecode: incorrect password")))
	assert.True(t, isPasswordError(errors.New("file is encrypted")))
	assert.False(t, isPasswordError(errors.New("unexpected EOF")))
	assert.False(t, isPasswordError(nil))
}
