package chat

import "testing"

func TestMessageRole(t *testing.T) {
	if got := (Message{IsUser: true}).Role(); got != RoleUser {
		t.Fatalf("expected %q, got %q", RoleUser, got)
	}
	if got := (Message{}).Role(); got != RoleAssistant {
		t.Fatalf("expected %q, got %q", RoleAssistant, got)
	}
}

func TestNowHasWholeSeconds(t *testing.T) {
	now := Now()
	if now.Nanosecond() != 0 || now.Location().String() != "UTC" {
		t.Fatalf("unexpected timestamp %v", now)
	}
}
