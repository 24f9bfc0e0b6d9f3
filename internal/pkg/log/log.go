package log

import (
	log "github.com/sirupsen/logrus"
)

type typedLog struct {
	Cache     *log.Entry
	Sync      *log.Entry
	Loader    *log.Entry
	Submitter *log.Entry
	ChainMeta *log.Entry
	Remote    *log.Entry
	Storage   *log.Entry
	Collector *log.Entry
	Mirror    *log.Entry
}

var (
	Logger *typedLog
)

// Init logger on start
func init() {
	Logger = &typedLog{
		Cache:     log.WithFields(log.Fields{"module": "cache"}),
		Sync:      log.WithFields(log.Fields{"module": "sync"}),
		Loader:    log.WithFields(log.Fields{"module": "loader"}),
		Submitter: log.WithFields(log.Fields{"module": "submitter"}),
		ChainMeta: log.WithFields(log.Fields{"module": "chainmeta"}),
		Remote:    log.WithFields(log.Fields{"module": "remote"}),
		Storage:   log.WithFields(log.Fields{"module": "storage"}),
		Collector: log.WithFields(log.Fields{"module": "collector"}),
		Mirror:    log.WithFields(log.Fields{"module": "mirror"}),
	}
}

func Setup(lvl string) error {
	logLevel, err := log.ParseLevel(lvl)
	if err != nil {
		return err
	}

	// log format
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	log.SetLevel(logLevel)
	return nil
}
