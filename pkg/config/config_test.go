package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("CFG_TEST_NAME", "almanac")
	t.Setenv("CFG_TEST_EMPTY", "")

	var s sample
	if err := Parse([]byte("name: ${CFG_TEST_NAME}\ndir: ${CFG_TEST_EMPTY:-./vault}\n"), &s); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Name != "almanac" || s.Dir != "./vault" {
		t.Errorf("got %+v", s)
	}
}

func TestParse_SetVarWinsOverFallback(t *testing.T) {
	t.Setenv("CFG_TEST_DIR", "/srv/notes")
	var s sample
	if err := Parse([]byte("name: x\ndir: ${CFG_TEST_DIR:-./vault}\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Dir != "/srv/notes" {
		t.Errorf("dir = %q", s.Dir)
	}
}

func TestParse_RunsValidator(t *testing.T) {
	var s sample
	if err := Parse([]byte("dir: x\n"), &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadWithDefaults_MissingBoth(t *testing.T) {
	dir := t.TempDir()
	var s sample
	missing := filepath.Join(dir, "missing.yaml")
	if err := LoadWithDefaults(missing, missing, &s); err == nil {
		t.Fatal("expected error when no file exists")
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(p, []byte("name: file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var s sample
	if err := Load(p, &s); err != nil || s.Name != "file" {
		t.Errorf("Load = %+v, %v", s, err)
	}
}
