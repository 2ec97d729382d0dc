package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/htol/kpcstrip/mazama"
)

func mustChecksummed(pid8 string) string {
	return mazama.AppendChecksum(pid8)
}

func TestLoadConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CredentialsPath != nil || cfg.Decompress != nil || len(cfg.ExtraPIDs) != 0 {
		t.Errorf("loadConfig(\"\") = %+v, want zero value", cfg)
	}

	missing := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	cfg, err = loadConfig(missing)
	if err != nil {
		t.Fatalf("loadConfig(missing): %v", err)
	}
	if cfg.CredentialsPath != nil {
		t.Errorf("loadConfig(missing).CredentialsPath = %v, want nil", cfg.CredentialsPath)
	}
}

func TestLoadConfigParsesFields(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "kpcstrip.yaml")
	yamlDoc := `
credentials_path: /home/user/.kindle/kindle.info
extra_pids:
  - "AAAAAAAA"
  - "BBBBBBBB"
decompress: true
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CredentialsPath == nil || *cfg.CredentialsPath != "/home/user/.kindle/kindle.info" {
		t.Errorf("CredentialsPath = %v, want /home/user/.kindle/kindle.info", cfg.CredentialsPath)
	}
	if len(cfg.ExtraPIDs) != 2 || cfg.ExtraPIDs[0] != "AAAAAAAA" || cfg.ExtraPIDs[1] != "BBBBBBBB" {
		t.Errorf("ExtraPIDs = %v, want [AAAAAAAA BBBBBBBB]", cfg.ExtraPIDs)
	}
	if cfg.Decompress == nil || !*cfg.Decompress {
		t.Errorf("Decompress = %v, want true", cfg.Decompress)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "kpcstrip.yaml")
	if err := os.WriteFile(path, []byte("credentials_path: [unterminated"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := loadConfig(path); err == nil {
		t.Fatal("loadConfig: expected error for malformed YAML")
	}
}

func TestNormalizePID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "8 char passthrough", in: "ABCDEFGH", want: "ABCDEFGH"},
		{name: "10 char valid checksum", in: mustChecksummed("ABCDEFGH"), want: "ABCDEFGH"},
		{name: "10 char bad checksum", in: "ABCDEFGHXX", wantErr: true},
		{name: "9 chars rejected", in: "ABCDEFGHI", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("normalizePID(%q): expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizePID(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("normalizePID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
