package cache

import (
	"strings"
	"testing"
	"time"
)

// TestValidateKey tests identifier validation rules.
func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"empty key", "", ErrInvalidKey},
		{"valid uuid", "5c6a2821-6bb1-4a7e-b6e1-c50111515c3d", nil},
		{"too long", strings.Repeat("x", MaxKeyLength+1), ErrKeyTooLong},
		{"contains newline", "key\nwith\nnewlines", ErrInvalidKey},
		{"contains carriage return", "key\rwith\rreturns", ErrInvalidKey},
		{"whitespace only", "   ", ErrInvalidKey},
		{"max length exactly", strings.Repeat("x", MaxKeyLength), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if err != tt.wantErr {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrInvalidKey", ErrInvalidKey, "cache: key is invalid"},
		{"ErrKeyTooLong", ErrKeyTooLong, "cache: key exceeds max length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("%s.Error() = %q, want %q", tt.name, got, tt.wantMsg)
			}
		})
	}

	if ErrInvalidKey == ErrKeyTooLong {
		t.Error("ErrInvalidKey and ErrKeyTooLong should be distinct")
	}
}

func TestKey_String(t *testing.T) {
	k := Key{Type: Page, ID: "p1"}
	if got := k.String(); got != "page:p1" {
		t.Errorf("String() = %q, want %q", got, "page:p1")
	}
}

func TestEntry_Expired(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Entry{CreatedAt: base, ExpiresAt: base.Add(time.Second)}

	if e.Expired(base) {
		t.Error("entry should be live at creation")
	}
	if !e.Expired(base.Add(time.Second)) {
		t.Error("entry should be expired exactly at ExpiresAt")
	}
	if !e.Expired(base.Add(2 * time.Second)) {
		t.Error("entry should be expired after ExpiresAt")
	}
}

func TestConfig_EffectiveTTL(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		typ      ResourceType
		explicit time.Duration
		want     time.Duration
	}{
		{"explicit wins", Page, 5 * time.Second, 5 * time.Second},
		{"block table", Block, 0, 30 * time.Second},
		{"page table", Page, 0, time.Minute},
		{"database table", Database, 0, 10 * time.Minute},
		{"data source table", DataSource, 0, 10 * time.Minute},
		{"user table", User, 0, time.Hour},
		{"unknown falls back to default", ResourceType("workspace"), 0, 5 * time.Minute},
		{"negative explicit ignored", User, -time.Second, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.EffectiveTTL(tt.typ, tt.explicit); got != tt.want {
				t.Errorf("EffectiveTTL(%s, %v) = %v, want %v", tt.typ, tt.explicit, got, tt.want)
			}
		})
	}
}

func TestStats_HitRate(t *testing.T) {
	if got := (Stats{}).HitRate(); got != 0 {
		t.Errorf("HitRate() with no requests = %v, want 0", got)
	}
	if got := (Stats{Hits: 3, Misses: 1}).HitRate(); got != 0.75 {
		t.Errorf("HitRate() = %v, want 0.75", got)
	}
}
