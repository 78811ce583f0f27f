package client

import (
	"testing"
)

func TestRootRegistersCommandGroups(t *testing.T) {
	root := NewRoot(func() string { return "http://127.0.0.1:8080" })
	want := map[string]bool{
		"story":   false,
		"typing":  false,
		"publish": false,
		"notify":  false,
		"watch":   false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("command %q not registered", name)
		}
	}
}

func TestIdentityFromRequiresUser(t *testing.T) {
	cmd := NewPublishCommand(func() string { return "http://x" })
	_ = cmd.Flags().Set("user", "")
	if _, _, err := identityFrom(cmd); err == nil {
		t.Fatal("expected error without --user")
	}
	_ = cmd.Flags().Set("user", "u-ana")
	userID, name, err := identityFrom(cmd)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if userID != "u-ana" || name != "u-ana" {
		t.Fatalf("identity: %s %s", userID, name)
	}
	_ = cmd.Flags().Set("name", "Ana")
	_, name, _ = identityFrom(cmd)
	if name != "Ana" {
		t.Fatalf("name: %s", name)
	}
}

func TestTypingCommandsRequireStoryFlag(t *testing.T) {
	typing := NewTypingCommand(func() string { return "http://x" })
	for _, sub := range typing.Commands() {
		if sub.Flags().Lookup("story") == nil {
			t.Fatalf("%s missing --story flag", sub.Name())
		}
	}
}
