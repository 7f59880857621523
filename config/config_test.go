package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PercentBoat4164/HardwareMixer/config"
)

func TestLoadParsesChannelsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixer.toml")
	data := `
[[channel]]
apps = ["Music Player"]

[[channel]]
apps = ["ANY"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if ch, ok := table.Route("Music Player"); !ok || ch != 0 {
		t.Fatalf("expected Music Player on channel 0, got (%d, %v)", ch, ok)
	}
	if ch, ok := table.Route("Browser"); !ok || ch != 1 {
		t.Fatalf("expected Browser on catch-all channel 1, got (%d, %v)", ch, ok)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	table, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if ch, ok := table.Route("Firefox"); !ok || ch != 0 {
		t.Fatalf("expected default table to put Firefox on channel 0, got (%d, %v)", ch, ok)
	}
	if ch, ok := table.Route("anything else"); !ok || ch != 1 {
		t.Fatalf("expected default catch-all on channel 1, got (%d, %v)", ch, ok)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	if err := os.WriteFile(path, []byte("[[channel]\napps = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadRejectsEmptyGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.toml")
	if err := os.WriteFile(path, []byte("[[channel]]\napps = []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for a channel with no apps")
	}
}

func TestEmptyFileUsesDefaultTable(t *testing.T) {
	table, err := config.Table(&config.File{})
	if err != nil {
		t.Fatal(err)
	}
	if ch, ok := table.Route("WEBRTC VoiceEngine"); !ok || ch != 0 {
		t.Fatalf("expected default table, got (%d, %v)", ch, ok)
	}
}
