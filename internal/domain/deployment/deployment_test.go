package deployment

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusProvisioning, StatusActive, true},
		{StatusProvisioning, StatusFailed, true},
		{StatusProvisioning, StatusTerminated, true},
		{StatusActive, StatusSuspended, true},
		{StatusActive, StatusTerminated, true},
		{StatusSuspended, StatusActive, true},
		{StatusSuspended, StatusTerminated, true},
		{StatusFailed, StatusTerminated, true},

		{StatusActive, StatusProvisioning, false},
		{StatusSuspended, StatusFailed, false},
		{StatusFailed, StatusActive, false},
		{StatusTerminated, StatusActive, false},
		{StatusTerminated, StatusProvisioning, false},
		{StatusTerminated, StatusTerminated, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestResizable(t *testing.T) {
	if !StatusActive.Resizable() || !StatusSuspended.Resizable() {
		t.Fatal("active and suspended must be resizable")
	}
	for _, s := range []Status{StatusProvisioning, StatusFailed, StatusTerminated} {
		if s.Resizable() {
			t.Fatalf("%s must not be resizable", s)
		}
	}
}

func TestBound(t *testing.T) {
	d := &Deployment{}
	if d.Bound() {
		t.Fatal("deployment without binding should not be bound")
	}
	id := 42
	ident := "abc123"
	d.PanelID = &id
	if d.Bound() {
		t.Fatal("panel id alone is not a full binding")
	}
	d.PanelIdentifier = &ident
	if !d.Bound() {
		t.Fatal("deployment with id and identifier should be bound")
	}
}
