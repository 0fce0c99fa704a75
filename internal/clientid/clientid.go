// Package clientid derives a stable identifier for the machine the agent runs
// on.
package clientid

import (
	"os"
	"os/user"
	"strings"

	"github.com/google/uuid"
)

// machineIDFiles are tried in order; the first readable one wins.
var machineIDFiles = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// namespace scopes derived ids so other tools hashing the same host data get
// different values.
var namespace = uuid.MustParse("8f2b7c4e-5a1d-4e0b-9c36-2d7e1f0a6b53")

type source struct {
	hostname  func() (string, error)
	machineID func() string
	username  func() string
}

var system = source{
	hostname:  os.Hostname,
	machineID: readMachineID,
	username: func() string {
		if u, err := user.Current(); err == nil {
			return u.Username
		}
		return os.Getenv("USER")
	},
}

// Resolve returns explicit when set. Otherwise the id is derived from the
// hostname and machine id, prefixed with "user@host." when includeUser is set.
func Resolve(explicit string, includeUser bool) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return system.derive(includeUser)
}

func (s source) derive(includeUser bool) string {
	host, _ := s.hostname()
	mid := s.machineID()

	var id string
	if host == "" && mid == "" {
		// nothing stable to hash
		id = uuid.New().String()
	} else {
		id = uuid.NewSHA1(namespace, []byte(host+"\x00"+mid)).String()
	}

	if includeUser {
		id = s.username() + "@" + host + "." + id
	}
	return id
}

func readMachineID() string {
	for _, f := range machineIDFiles {
		if b, err := os.ReadFile(f); err == nil {
			if s := strings.TrimSpace(string(b)); s != "" {
				return s
			}
		}
	}
	return ""
}
