package responder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"deskbot/internal/config"

	"gopkg.in/yaml.v3"
)

// LoadProfiles reads per-responder tuning profiles from YAML files in a
// directory. The file stem names the responder (sales.yaml tunes the sales
// responder); inline profiles from the main config take precedence over
// files for the same name.
func LoadProfiles(cfg config.RespondersConfig, logger *slog.Logger) (map[string]config.ResponderProfile, error) {
	profiles := make(map[string]config.ResponderProfile)

	if cfg.ProfilesDir != "" {
		fromDir, err := loadProfileDir(cfg.ProfilesDir, logger)
		if err != nil {
			return nil, err
		}
		for name, p := range fromDir {
			profiles[name] = p
		}
	}
	for name, p := range cfg.Profiles {
		profiles[name] = p
	}
	return profiles, nil
}

func loadProfileDir(dir string, logger *slog.Logger) (map[string]config.ResponderProfile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("responder profiles directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	profiles := make(map[string]config.ResponderProfile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read profile file", "path", path, "err", err)
			continue
		}

		var profile config.ResponderProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			logger.Warn("cannot parse profile file", "path", path, "err", err)
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		logger.Info("loaded responder profile", "responder", stem, "path", path)
		profiles[stem] = profile
	}

	return profiles, nil
}
