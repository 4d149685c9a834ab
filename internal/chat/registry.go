package chat

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// Claim rejections. Both are recoverable; the client may retry with a
// different name on the same connection.
var (
	ErrInvalidName = errors.New("name must be 3-15 letters, digits, or underscores")
	ErrNameTaken   = errors.New("name is already taken")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,15}$`)

// Conn is the transport-owned handle for one live connection. Send enqueues
// an outbound event and must not block: delivery is fire-and-forget, and the
// engine calls it while holding its lock. A failed Send is swallowed by the
// caller.
type Conn interface {
	Send(event any) error
}

// Identity binds a live connection to its addressable key. Until a name is
// claimed the key is an auto-generated guest placeholder and Provisional is
// set; Claim flips it exactly once.
type Identity struct {
	Conn        Conn
	Key         string
	DisplayName string
	Provisional bool
}

// Registry maps live connections to identities in both directions and
// enforces display-name uniqueness. It carries no lock of its own: the
// engine serializes every call under its single mutation lock, which is what
// keeps claim atomic with respect to concurrent sessions.
type Registry struct {
	byConn map[Conn]*Identity
	byKey  map[string]*Identity
	guest  func() string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[Conn]*Identity),
		byKey:  make(map[string]*Identity),
		guest:  guestKey,
	}
}

func guestKey() string {
	return "guest-" + uuid.NewString()[:8]
}

// RegisterProvisional inserts a new identity under a generated guest key and
// returns that key. Generation retries on the (vanishing) chance of collision.
func (r *Registry) RegisterProvisional(conn Conn) string {
	key := r.guest()
	for _, taken := r.byKey[key]; taken; _, taken = r.byKey[key] {
		key = r.guest()
	}
	ident := &Identity{Conn: conn, Key: key, DisplayName: key, Provisional: true}
	r.byConn[conn] = ident
	r.byKey[key] = ident
	return key
}

// Claim atomically renames the connection's identity from its provisional
// key to the requested name. It validates syntax, rejects names held by any
// other live identity, and leaves the identity untouched on failure.
func (r *Registry) Claim(conn Conn, requested string) (string, error) {
	ident, ok := r.byConn[conn]
	if !ok {
		return "", fmt.Errorf("claim %q: connection not registered", requested)
	}
	if !namePattern.MatchString(requested) {
		return "", ErrInvalidName
	}
	if other, taken := r.byKey[requested]; taken && other != ident {
		return "", ErrNameTaken
	}

	delete(r.byKey, ident.Key)
	ident.Key = requested
	ident.DisplayName = requested
	ident.Provisional = false
	r.byKey[requested] = ident
	return requested, nil
}

// Remove deletes the connection's identity. Removing an unknown connection
// is a no-op, so concurrent teardown signals stay harmless.
func (r *Registry) Remove(conn Conn) (Identity, bool) {
	ident, ok := r.byConn[conn]
	if !ok {
		return Identity{}, false
	}
	delete(r.byConn, conn)
	delete(r.byKey, ident.Key)
	return *ident, true
}

// Find resolves an identity key to its live connection.
func (r *Registry) Find(key string) (Conn, bool) {
	ident, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return ident.Conn, true
}

// Lookup returns the identity currently bound to a connection.
func (r *Registry) Lookup(conn Conn) (Identity, bool) {
	ident, ok := r.byConn[conn]
	if !ok {
		return Identity{}, false
	}
	return *ident, true
}

// Snapshot returns a stable copy of the live roster, sorted by key so
// repeated pushes are comparable.
func (r *Registry) Snapshot() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.byKey))
	for _, ident := range r.byKey {
		out = append(out, RosterEntry{ID: ident.Key, Username: ident.DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Conns enumerates every live connection for fan-out.
func (r *Registry) Conns() []Conn {
	out := make([]Conn, 0, len(r.byConn))
	for conn := range r.byConn {
		out = append(out, conn)
	}
	return out
}
