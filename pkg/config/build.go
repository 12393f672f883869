package config

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set through -ldflags "-X github.com/flare-foundation/casper-deployer/pkg/config.gitTag=...".
var (
	gitTag    string
	gitHash   string
	buildDate string
)

type BuildConfig struct {
	GitTag    string
	GitHash   string
	BuildDate uint64
}

// ReadBuildVersion prefers linker-provided values and falls back to the VCS
// information embedded by the go tool.
func ReadBuildVersion() *BuildConfig {
	cfg := &BuildConfig{
		GitTag:  gitTag,
		GitHash: gitHash,
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		cfg.BuildDate = uint64(t.Unix())
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return cfg
	}

	if cfg.GitTag == "" && info.Main.Version != "" {
		cfg.GitTag = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if cfg.GitHash == "" {
				cfg.GitHash = s.Value
			}
		case "vcs.time":
			if cfg.BuildDate == 0 {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					cfg.BuildDate = uint64(t.Unix())
				}
			}
		}
	}

	return cfg
}

func (b *BuildConfig) String() string {
	tag := b.GitTag
	if tag == "" {
		tag = "dev"
	}

	s := tag
	if b.GitHash != "" {
		s += fmt.Sprintf(" (%s)", b.GitHash)
	}
	if b.BuildDate != 0 {
		s += " built " + time.Unix(int64(b.BuildDate), 0).UTC().Format(time.RFC3339)
	}

	return s
}
