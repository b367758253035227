package credentials_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmerrifield20/bfx/internal/credentials"
	"github.com/jmerrifield20/bfx/pkg/client"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeEnvFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, credentials.FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolve_environmentWins(t *testing.T) {
	wd := t.TempDir()
	writeEnvFile(t, wd, "API_KEY=file-key\nAPI_SECRET=file-secret\n")

	r := &credentials.Resolver{
		Getenv:  env(map[string]string{"API_KEY": "env-key", "API_SECRET": "env-secret"}),
		WorkDir: wd,
	}
	creds, src, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "env-key" || creds.APISecret != "env-secret" || src != credentials.SourceEnv {
		t.Errorf("got %+v from %q", creds, src)
	}
}

func TestResolve_realEnvironment(t *testing.T) {
	t.Setenv("API_KEY", "k")
	t.Setenv("API_SECRET", "s")

	r := &credentials.Resolver{WorkDir: t.TempDir()}
	creds, src, err := r.Resolve()
	if err != nil || creds.APIKey != "k" || src != credentials.SourceEnv {
		t.Errorf("got %+v from %q: %v", creds, src, err)
	}
}

func TestResolve_partialEnvironmentFallsThrough(t *testing.T) {
	home := t.TempDir()
	path := writeEnvFile(t, home, "API_KEY=file-key\nAPI_SECRET=file-secret\n")

	r := &credentials.Resolver{
		Getenv:  env(map[string]string{"API_KEY": "env-key"}),
		WorkDir: t.TempDir(),
		HomeDir: home,
	}
	creds, src, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "file-key" || src != path {
		t.Errorf("got %+v from %q", creds, src)
	}
}

func TestResolve_workDirBeforeHome(t *testing.T) {
	wd, home := t.TempDir(), t.TempDir()
	wdPath := writeEnvFile(t, wd, "API_KEY=wd-key\nAPI_SECRET=wd-secret\n")
	writeEnvFile(t, home, "API_KEY=home-key\nAPI_SECRET=home-secret\n")

	r := &credentials.Resolver{Getenv: env(nil), WorkDir: wd, HomeDir: home}
	creds, src, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "wd-key" || src != wdPath {
		t.Errorf("got %+v from %q", creds, src)
	}
}

func TestResolve_incompleteFile(t *testing.T) {
	wd := t.TempDir()
	writeEnvFile(t, wd, "API_KEY=only-key\n")

	r := &credentials.Resolver{Getenv: env(nil), WorkDir: wd}
	if _, _, err := r.Resolve(); err == nil || !strings.Contains(err.Error(), "API_SECRET") {
		t.Errorf("expected incomplete file error, got %v", err)
	}
}

func TestResolve_notFoundWithoutPrompt(t *testing.T) {
	r := &credentials.Resolver{Getenv: env(nil), WorkDir: t.TempDir(), HomeDir: t.TempDir()}
	if _, _, err := r.Resolve(); !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_promptsAndSaves(t *testing.T) {
	home := t.TempDir()
	var out bytes.Buffer
	r := &credentials.Resolver{
		Getenv:  env(nil),
		WorkDir: t.TempDir(),
		HomeDir: home,
		Prompt:  true,
		In:      strings.NewReader("typed-key\ntyped-secret\n"),
		Out:     &out,
	}

	creds, src, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(home, credentials.FileName)
	if creds.APIKey != "typed-key" || creds.APISecret != "typed-secret" || src != want {
		t.Errorf("got %+v from %q", creds, src)
	}
	if !strings.Contains(out.String(), "API key") || !strings.Contains(out.String(), "API secret") {
		t.Errorf("prompt output = %q", out.String())
	}

	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	// A second run reads the saved file without prompting.
	r2 := &credentials.Resolver{Getenv: env(nil), WorkDir: t.TempDir(), HomeDir: home}
	again, _, err := r2.Resolve()
	if err != nil || again != creds {
		t.Errorf("reread = %+v, %v", again, err)
	}
}

func TestResolve_promptRejectsEmptyAnswers(t *testing.T) {
	home := t.TempDir()
	r := &credentials.Resolver{
		Getenv:  env(nil),
		HomeDir: home,
		Prompt:  true,
		In:      strings.NewReader("\n\n"),
		Out:     &bytes.Buffer{},
	}
	if _, _, err := r.Resolve(); err == nil {
		t.Fatal("expected an error for empty answers")
	}
	if _, err := os.Stat(filepath.Join(home, credentials.FileName)); !os.IsNotExist(err) {
		t.Error("file written despite empty answers")
	}
}

func TestSave_tightensExistingFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), credentials.FileName)
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := credentials.Save(path, client.Credentials{APIKey: "k", APISecret: "s=with=equals"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o", info.Mode().Perm())
	}

	r := &credentials.Resolver{Getenv: env(nil), WorkDir: filepath.Dir(path)}
	creds, _, err := r.Resolve()
	if err != nil || creds.APISecret != "s=with=equals" {
		t.Errorf("round trip = %+v, %v", creds, err)
	}
}
