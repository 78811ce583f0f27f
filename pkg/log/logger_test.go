package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTextFormatterFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(DebugLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.Info("hello", Str("b", "two"), Str("a", "one"))
	line := buf.String()
	if !strings.Contains(line, "INFO hello") {
		t.Fatalf("missing level/message: %q", line)
	}
	if strings.Index(line, "a=one") > strings.Index(line, "b=two") {
		t.Fatalf("fields not sorted: %q", line)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(WarnLevel),
		WithFormatter(&TextFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be gated below warn: %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn should pass: %q", buf.String())
	}
}

func TestWithErrorAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(DebugLevel),
		WithFormatter(&JSONFormatter{}),
		WithOutput(NewWriterOutput(&buf)),
	)
	l.WithError(errors.New("boom")).WithComponent("broker").Error("publish failed")
	out := buf.String()
	for _, want := range []string{`"error":"boom"`, `"component":"broker"`, `"msg":"publish failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("debug"); err != nil || lvl != DebugLevel {
		t.Fatalf("debug: %v %v", lvl, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
