package main

import (
	"bytes"
	"strings"
	"testing"

	"talkinghead/config"
	"talkinghead/internal/auth"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"User", "Balance"}, [][]string{{"7", "2.25"}, {"8"}}, []columnAlignment{alignRight, alignRight})
	for _, want := range []string{"User", "Balance", "2.25"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "talkinghead")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "42", "--email", "a@example.test"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	cfg := config.Load()
	claims, err := auth.ParseAccessToken(&cfg.JWT, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "a@example.test" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenCommandRejectsBadID(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "zero"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
