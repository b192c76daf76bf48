package domain

import "testing"

func TestScope_IsValid(t *testing.T) {
	tests := []struct {
		scope Scope
		want  bool
	}{
		{ScopeRead, true},
		{ScopeWrite, true},
		{"admin", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.scope.IsValid(); got != tt.want {
			t.Errorf("Scope(%q).IsValid() = %v, want %v", tt.scope, got, tt.want)
		}
	}
}

func TestScope_Allows(t *testing.T) {
	if !ScopeWrite.Allows(ScopeRead) {
		t.Error("expected write scope to allow reads")
	}
	if !ScopeWrite.Allows(ScopeWrite) {
		t.Error("expected write scope to allow writes")
	}
	if !ScopeRead.Allows(ScopeRead) {
		t.Error("expected read scope to allow reads")
	}
	if ScopeRead.Allows(ScopeWrite) {
		t.Error("expected read scope to deny writes")
	}
}

func TestAuthContext_CanWrite(t *testing.T) {
	reader := &AuthContext{Subject: "dashboard", Scope: ScopeRead}
	writer := &AuthContext{Subject: "field-app", Scope: ScopeWrite}

	if reader.CanWrite() {
		t.Error("expected read-scoped caller to be denied writes")
	}
	if !writer.CanWrite() {
		t.Error("expected write-scoped caller to be allowed writes")
	}
}
