package backend

import (
	"strings"
	"testing"
)

func TestNew_DefaultsToClaude(t *testing.T) {
	b, err := New(Config{WorkDir: "/tmp/test"}, NewProcessManager())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if _, ok := b.(*ClaudeAdapter); !ok {
		t.Errorf("expected *ClaudeAdapter, got %T", b)
	}
	if b.SessionID() == "" {
		t.Error("expected non-empty session ID")
	}
}

func TestNew_CreatesCommandAdapter(t *testing.T) {
	b, err := New(Config{Type: "command", Command: "cat"}, NewProcessManager())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if _, ok := b.(*CommandAdapter); !ok {
		t.Errorf("expected *CommandAdapter, got %T", b)
	}
}

func TestNew_UnknownType(t *testing.T) {
	b, err := New(Config{Type: "codex"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown backend type")
	}
	if b != nil {
		t.Errorf("expected nil backend, got %T", b)
	}
	if !strings.Contains(err.Error(), "unknown backend type") {
		t.Errorf("unexpected error message: %v", err)
	}
}

// A constructor error must not leak a typed-nil Backend.
func TestNew_ConstructorErrorReturnsNilInterface(t *testing.T) {
	b, err := New(Config{Type: "command"}, nil)
	if err == nil {
		t.Fatal("expected error for command backend without command")
	}
	if b != nil {
		t.Errorf("expected untyped nil backend, got %T", b)
	}
}

func TestFactory_PassesConfig(t *testing.T) {
	factory := Factory(NewProcessManager())

	b, err := factory(Config{Type: "claude", SessionID: testSessionID, Model: "opus"})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}

	adapter := b.(*ClaudeAdapter)
	if adapter.SessionID() != testSessionID {
		t.Errorf("expected session %s, got %s", testSessionID, adapter.SessionID())
	}
	if adapter.model != "opus" {
		t.Errorf("expected model opus, got %s", adapter.model)
	}
}

func TestAllAdapters_CloseIsIdempotent(t *testing.T) {
	configs := []Config{
		{Type: "claude"},
		{Type: "command", Command: "cat"},
	}

	for _, cfg := range configs {
		t.Run(cfg.Type, func(t *testing.T) {
			b, err := New(cfg, nil)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			for i := 0; i < 2; i++ {
				if err := b.Close(); err != nil {
					t.Errorf("Close #%d returned %v", i+1, err)
				}
			}
		})
	}
}
