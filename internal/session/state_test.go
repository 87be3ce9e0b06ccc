package session

import (
	"testing"
	"time"
)

func TestParseAccountTier(t *testing.T) {
	tests := []struct {
		in      string
		want    AccountTier
		wantErr bool
	}{
		{in: "", want: TierIndividual},
		{in: "Business", want: TierBusiness},
		{in: " enterprise ", want: TierEnterprise},
		{in: "team", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAccountTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseAccountTier(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseAccountTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionTokenReplacement(t *testing.T) {
	s := New("")
	if tok, _ := s.SessionToken(); tok != "" {
		t.Fatalf("expected empty token before init, got %q", tok)
	}
	exp := time.Now().Add(time.Hour)
	s.SetSessionToken("tid=1", exp)
	tok, gotExp := s.SessionToken()
	if tok != "tid=1" || !gotExp.Equal(exp) {
		t.Fatalf("SessionToken = %q %v", tok, gotExp)
	}
}

func TestModelsAreCopied(t *testing.T) {
	s := New(TierIndividual)
	in := []ModelDescriptor{{ID: "gpt-4o", MaxOutputTokens: 4096}}
	s.SetModels(in)
	in[0].ID = "mutated"

	out := s.Models()
	if out[0].ID != "gpt-4o" {
		t.Fatalf("catalog aliased caller slice: %+v", out)
	}
	out[0].ID = "mutated"
	if m, ok := s.LookupModel("gpt-4o"); !ok || m.MaxOutputTokens != 4096 {
		t.Fatalf("LookupModel = %+v, %t", m, ok)
	}
}
