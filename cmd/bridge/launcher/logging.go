package launcher

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// logrusLevels maps go-ethereum verbosity levels onto logrus.
var logrusLevels = map[log.Lvl]logrus.Level{
	log.LvlCrit:  logrus.FatalLevel,
	log.LvlError: logrus.ErrorLevel,
	log.LvlWarn:  logrus.WarnLevel,
	log.LvlInfo:  logrus.InfoLevel,
	log.LvlDebug: logrus.DebugLevel,
	log.LvlTrace: logrus.TraceLevel,
}

func logrusLevel(lvl log.Lvl) logrus.Level {
	if l, ok := logrusLevels[lvl]; ok {
		return l
	}
	if lvl < log.LvlCrit {
		return logrus.FatalLevel
	}
	return logrus.TraceLevel
}

// newLogger builds the process logger from cfg.
func newLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = os.Stderr
	logger.SetLevel(logrusLevel(log.Lvl(cfg.Verbosity)))

	switch cfg.Format {
	case "", "text":
		logger.Formatter = &logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
		}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		logger.AddHook(hook)
	}
	return logger, nil
}

// forwardRecord hands one go-ethereum log record to logger.
func forwardRecord(logger *logrus.Logger, r *log.Record) {
	fields := make(logrus.Fields, len(r.Ctx)/2)
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		fields[fmt.Sprint(r.Ctx[i])] = r.Ctx[i+1]
	}
	logger.WithFields(fields).WithTime(r.Time).Log(logrusLevel(r.Lvl), r.Msg)
}

// setupLogging routes the go-ethereum root logger, used by every core
// package, into logger.
func setupLogging(logger *logrus.Logger, verbosity int) {
	handler := log.FuncHandler(func(r *log.Record) error {
		forwardRecord(logger, r)
		return nil
	})
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(verbosity), handler))
}
