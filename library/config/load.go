// Package config loads settings into gconfig.Shared.
package config

import (
	"os"
	"path/filepath"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-web/library/log"
)

// LoadFromFile reads the yaml file at cfgPath into gconfig.Shared.
// The directory of the file is kept as cfg_dir for relative paths such as
// settings.web.static_dir.
func LoadFromFile(cfgPath string) error {
	if cfgPath == "" {
		return errors.New("config path is empty")
	}

	info, err := os.Stat(cfgPath)
	if err != nil {
		return errors.Wrapf(err, "stat config %q", cfgPath)
	}
	if info.IsDir() {
		return errors.Errorf("config %q is a directory", cfgPath)
	}

	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err = gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		return errors.Wrapf(err, "load config %q", cfgPath)
	}

	log.Logger.Info("load configuration", zap.String("config", cfgPath))
	return nil
}

// ResolvePath joins a relative path onto cfg_dir. Absolute and empty paths
// are returned unchanged.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	if dir := gconfig.Shared.GetString("cfg_dir"); dir != "" {
		return filepath.Join(dir, p)
	}

	return p
}
