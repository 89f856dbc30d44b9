package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestDecode_ExpandsEnv(t *testing.T) {
	t.Setenv("DECKSMITH_TEST_NAME", "from-env")
	s := sample{Port: 1}
	if err := Decode([]byte("name: ${DECKSMITH_TEST_NAME}\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" {
		t.Errorf("name = %q, want from-env", s.Name)
	}
	if s.Port != 1 {
		t.Errorf("port = %d, default should survive", s.Port)
	}
}

func TestDecode_Validates(t *testing.T) {
	s := sample{}
	err := Decode([]byte("port: 0\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := sample{Port: 1}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	s := sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(dir, "nope.yaml"), &s)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("name: x\nport: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err = LoadOptional(path, &s)
	if err != nil || !found {
		t.Fatalf("present file: found=%v err=%v", found, err)
	}
	if s.Name != "x" || s.Port != 9 {
		t.Errorf("loaded = %+v", s)
	}
}
