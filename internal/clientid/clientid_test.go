package clientid

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func fixed(host, mid, user string) source {
	return source{
		hostname:  func() (string, error) { return host, nil },
		machineID: func() string { return mid },
		username:  func() string { return user },
	}
}

func TestResolve_Explicit(t *testing.T) {
	require.Equal(t, "agent-7", Resolve("  agent-7 ", true))
}

func TestDerive_StablePerMachine(t *testing.T) {
	a := fixed("web01", "abc123", "ops").derive(false)
	b := fixed("web01", "abc123", "ops").derive(false)
	c := fixed("web02", "abc123", "ops").derive(false)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	u, err := uuid.Parse(a)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(5), u.Version())
}

func TestDerive_IncludeUser(t *testing.T) {
	id := fixed("web01", "abc123", "ops").derive(true)
	require.True(t, strings.HasPrefix(id, "ops@web01."), id)
	require.Equal(t, fixed("web01", "abc123", "x").derive(false), strings.TrimPrefix(id, "ops@web01."))
}

func TestDerive_NoMachineDataIsRandom(t *testing.T) {
	s := source{
		hostname:  func() (string, error) { return "", errors.New("no hostname") },
		machineID: func() string { return "" },
		username:  func() string { return "" },
	}
	a, b := s.derive(false), s.derive(false)
	require.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}
