package logutil

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lightsd-go/lightsd/internal/config"
)

var once sync.Once

// Init configures the package-wide logrus logger from v. It is idempotent:
// only the first call in a process takes effect, matching the core's
// single logger-configuration point.
func Init(v config.Verbosity) {
	once.Do(func() {
		log.SetLevel(toLevel(v))
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	})
}

func toLevel(v config.Verbosity) log.Level {
	switch v {
	case config.VerbosityDebug:
		return log.DebugLevel
	case config.VerbosityWarning:
		return log.WarnLevel
	case config.VerbosityError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
