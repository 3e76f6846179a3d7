// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package cache

import (
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var logger = logrus.New()
var log logrus.FieldLogger

func init() {
	log = logger.WithField("prefix", "cache")
	logger.Formatter = new(prefixed.TextFormatter)
	logger.Level = logrus.WarnLevel
}

// SetLevel adjusts the verbosity of this package's logging.
func SetLevel(level logrus.Level) {
	logger.Level = level
}
