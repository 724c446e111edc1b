package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logrus logger writing to stdout and a rotated file under dir.
func New(dir, level string) (*logrus.Logger, error) {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "fleetmetrics.log"),
		MaxSize:    50, // MB
		MaxBackups: 7,
		MaxAge:     28, // days
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotated))
	return logger, nil
}
