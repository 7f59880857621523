// Package config loads the routing table that maps application names to
// mixer channels.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/PercentBoat4164/HardwareMixer/router"
)

const DefaultPath = "hardwaremixer.toml"

// File is the on-disk routing configuration. Channels are listed in
// priority order and indexed from 1; an apps list of exactly ["ANY"]
// marks the catch-all.
//
//	[[channel]]
//	apps = ["Tauon Music Box", "Firefox"]
//
//	[[channel]]
//	apps = ["ANY"]
type File struct {
	Channels []ChannelGroup `toml:"channel"`
}

type ChannelGroup struct {
	Apps []string `toml:"apps"`
}

// Default is the routing table used when no configuration file exists:
// a set of known players on the first slider and everything else on the
// second.
func Default() *router.Table {
	t, err := router.NewTable([]router.Entry{
		{Apps: []string{"Tauon Music Box", "Firefox", "VLC media player (LibVLC 3.0.18)", "WEBRTC VoiceEngine"}, Channel: 0},
		{Apps: []string{router.CatchAll}, Channel: 1},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads the routing table from path. A missing file is not an
// error: the hardcoded default table is returned instead. A present but
// unparseable file is an error, so a typo cannot silently reroute every
// stream.
func Load(path string) (*router.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Table(&f)
}

// Table converts the 1-based file layout into a routing table.
func Table(f *File) (*router.Table, error) {
	if len(f.Channels) == 0 {
		return Default(), nil
	}
	entries := make([]router.Entry, 0, len(f.Channels))
	for i, g := range f.Channels {
		if len(g.Apps) == 0 {
			return nil, fmt.Errorf("channel %d has no apps", i+1)
		}
		entries = append(entries, router.Entry{Apps: g.Apps, Channel: i})
	}
	t, err := router.NewTable(entries)
	if err != nil {
		return nil, err
	}
	return t, nil
}
