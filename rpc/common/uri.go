package common

import (
	"fmt"
	"strings"
)

// Supported URI schemes
const (
	SchemeTCP  = "tcp"
	SchemeUnix = "unix"
)

// URI addresses a database on a server: scheme://address/database
//
//	tcp://localhost:8080/users
//	unix:///tmp/dvkv.sock/users
//
// For unix sockets the last path element is always the database, so a socket without
// database is written with a trailing slash (unix:///tmp/dvkv.sock/).
// The database may be empty.
type URI struct {
	Scheme   string
	Address  string
	Database string
}

// ParseURI parses a database URI
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return URI{}, fmt.Errorf("invalid uri %q: missing scheme", raw)
	}

	var u URI
	u.Scheme = strings.ToLower(scheme)

	switch u.Scheme {
	case SchemeTCP:
		u.Address, u.Database, _ = strings.Cut(rest, "/")
	case SchemeUnix:
		if i := strings.LastIndex(rest, "/"); i > 0 {
			u.Address, u.Database = rest[:i], rest[i+1:]
		} else {
			u.Address = rest
		}
	default:
		return URI{}, fmt.Errorf("invalid uri %q: unsupported scheme %q", raw, scheme)
	}

	if u.Address == "" {
		return URI{}, fmt.Errorf("invalid uri %q: missing address", raw)
	}
	if strings.Contains(u.Database, "/") {
		return URI{}, fmt.Errorf("invalid uri %q: database must not contain '/'", raw)
	}
	return u, nil
}

// Endpoint identifies the server connection of the URI (scheme://address)
func (u URI) Endpoint() string {
	return u.Scheme + "://" + u.Address
}

// WithDatabase returns a copy of u addressing another database
func (u URI) WithDatabase(database string) URI {
	u.Database = database
	return u
}

func (u URI) String() string {
	return u.Endpoint() + "/" + u.Database
}
