package chat

import (
	"errors"
	"strings"
	"testing"
)

type stubConn struct{ id int }

func (c *stubConn) Send(any) error { return nil }

func TestRegisterProvisionalAssignsGuestKeys(t *testing.T) {
	reg := NewRegistry()

	k1 := reg.RegisterProvisional(&stubConn{id: 1})
	k2 := reg.RegisterProvisional(&stubConn{id: 2})

	if !strings.HasPrefix(k1, "guest-") || !strings.HasPrefix(k2, "guest-") {
		t.Fatalf("expected guest prefix, got %q and %q", k1, k2)
	}
	if k1 == k2 {
		t.Fatalf("expected distinct provisional keys, both %q", k1)
	}

	ident, ok := reg.Lookup(&stubConn{id: 3})
	if ok {
		t.Fatalf("expected unknown connection, got %+v", ident)
	}
}

func TestRegisterProvisionalRetriesOnCollision(t *testing.T) {
	reg := NewRegistry()
	keys := []string{"guest-same", "guest-same", "guest-other"}
	reg.guest = func() string {
		k := keys[0]
		keys = keys[1:]
		return k
	}

	if k := reg.RegisterProvisional(&stubConn{id: 1}); k != "guest-same" {
		t.Fatalf("expected first key guest-same, got %q", k)
	}
	if k := reg.RegisterProvisional(&stubConn{id: 2}); k != "guest-other" {
		t.Fatalf("expected collision retry to yield guest-other, got %q", k)
	}
}

func TestClaimValidation(t *testing.T) {
	cases := []struct {
		name    string
		request string
		wantErr error
	}{
		{"ok", "alice_01", nil},
		{"too short", "ab", ErrInvalidName},
		{"too long", "abcdefghijklmnop", ErrInvalidName},
		{"bad characters", "al ice!", ErrInvalidName},
		{"empty", "", ErrInvalidName},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			conn := &stubConn{id: 1}
			reg.RegisterProvisional(conn)

			key, err := reg.Claim(conn, tc.request)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				ident, _ := reg.Lookup(conn)
				if !ident.Provisional {
					t.Fatalf("rejected claim must leave identity provisional, got %+v", ident)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key != tc.request {
				t.Fatalf("expected key %q, got %q", tc.request, key)
			}
		})
	}
}

func TestClaimRejectsHeldName(t *testing.T) {
	reg := NewRegistry()
	c1 := &stubConn{id: 1}
	c2 := &stubConn{id: 2}
	reg.RegisterProvisional(c1)
	provisional := reg.RegisterProvisional(c2)

	if _, err := reg.Claim(c1, "alice"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := reg.Claim(c2, "alice"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	ident, ok := reg.Lookup(c2)
	if !ok || !ident.Provisional || ident.Key != provisional {
		t.Fatalf("rejected claim must not mutate identity, got %+v", ident)
	}

	// The loser can still claim a free name on the same connection.
	if _, err := reg.Claim(c2, "bob"); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if conn, ok := reg.Find("bob"); !ok || conn != c2 {
		t.Fatalf("expected bob to resolve to second connection")
	}
	if _, ok := reg.Find(provisional); ok {
		t.Fatal("provisional key must be released after claim")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := &stubConn{id: 1}
	reg.RegisterProvisional(conn)
	if _, err := reg.Claim(conn, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	ident, ok := reg.Remove(conn)
	if !ok || ident.Key != "alice" {
		t.Fatalf("expected removal of alice, got ok=%v ident=%+v", ok, ident)
	}
	if _, ok := reg.Remove(conn); ok {
		t.Fatal("second remove must be a no-op")
	}
	if _, ok := reg.Find("alice"); ok {
		t.Fatal("removed identity must not resolve")
	}
}

func TestSnapshotIsStableCopy(t *testing.T) {
	reg := NewRegistry()
	c1 := &stubConn{id: 1}
	c2 := &stubConn{id: 2}
	reg.RegisterProvisional(c1)
	reg.RegisterProvisional(c2)
	if _, err := reg.Claim(c1, "bob"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Claim(c2, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	snap := reg.Snapshot()
	if len(snap) != 2 || snap[0].ID != "alice" || snap[1].ID != "bob" {
		t.Fatalf("expected sorted roster [alice bob], got %+v", snap)
	}

	reg.Remove(c1)
	if len(snap) != 2 {
		t.Fatalf("snapshot must be independent of later mutation, got %+v", snap)
	}
}
