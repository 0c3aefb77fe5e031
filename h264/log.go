package h264

import "github.com/sirupsen/logrus"

// logger is used for diagnostic output by the parsers in this package.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package logger.
func SetLogger(l logrus.FieldLogger) { logger = l }
