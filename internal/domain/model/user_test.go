//go:build !integration

package model

import "testing"

func TestSplitCustomerName(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"Ana Anić", "Ana", "Anić"},
		{"Marko Petar Marković", "Marko", "Petar Marković"},
		{"Pero", "Pero", "Pero"},
		{"", "Korisnik", "Korisnik"},
		{"   ", "Korisnik", "Korisnik"},
	}
	for _, tc := range cases {
		first, last := SplitCustomerName(tc.in)
		if first != tc.first || last != tc.last {
			t.Errorf("SplitCustomerName(%q) = %q/%q, want %q/%q", tc.in, first, last, tc.first, tc.last)
		}
	}
}

func TestNewGuestUser(t *testing.T) {
	u, err := NewGuestUser("gost@example.com", "Gost Gostić", "hash")
	if err != nil {
		t.Fatalf("NewGuestUser: %v", err)
	}
	if u.ID == "" {
		t.Error("expected a generated id")
	}
	if u.Role != "customer" {
		t.Errorf("unexpected role %q", u.Role)
	}
	if u.SubscriptionStatus != SubscriptionStatusNone {
		t.Errorf("fresh guest must start without a subscription, got %s", u.SubscriptionStatus)
	}

	if _, err := NewGuestUser("", "X", "hash"); err == nil {
		t.Fatal("expected an error for empty email")
	}
}
