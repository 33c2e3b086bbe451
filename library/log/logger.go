// Package log holds the process logger.
package log

import (
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

const appName = "blog-web"

// Logger is the process logger, packages derive named children from it
var Logger logSDK.Logger

func init() {
	var err error
	if Logger, err = logSDK.NewConsoleWithName(appName, logSDK.LevelInfo); err != nil {
		logSDK.Shared.Panic("new logger", zap.Error(err))
	}
}

// SetLevel changes the level of Logger. Empty means info.
func SetLevel(level string) error {
	lvl := logSDK.Level(strings.ToLower(strings.TrimSpace(level)))
	switch lvl {
	case "":
		lvl = logSDK.LevelInfo
	case logSDK.LevelDebug, logSDK.LevelInfo, logSDK.LevelWarn, logSDK.LevelError:
	default:
		return errors.Errorf("unknown log level %q", level)
	}

	if err := Logger.ChangeLevel(lvl); err != nil {
		return errors.Wrapf(err, "change log level to %q", lvl)
	}

	return nil
}
