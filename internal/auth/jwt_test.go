package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("cam-b204", "device", "classwatch", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("issued empty tokens")
	}

	claims, err := Parse(pair.AccessToken, "secret", "classwatch")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "cam-b204" {
		t.Errorf("subject = %q, want cam-b204", claims.Subject)
	}
	if claims.Role != "device" {
		t.Errorf("role = %q, want device", claims.Role)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("cam-b204", "device", "classwatch", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other", "classwatch"); err == nil {
		t.Fatal("Parse accepted a token signed with a different key")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("cam-b204", "device", "other-system", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "classwatch"); err == nil {
		t.Fatal("Parse accepted a token from a different issuer")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("cam-b204", "device", "classwatch", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "classwatch"); err == nil {
		t.Fatal("Parse accepted an expired token")
	}
}
