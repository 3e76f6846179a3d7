// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/Wazzaps/ampm/cache"
)

func realMain() int {
	// logging is unrequested output; stdout must carry only what the user
	// asked for so it can be captured by shell substitution
	logrus.SetOutput(os.Stderr)

	if os.Getenv("AMPM_PROFILE") != "" {
		defer profile.Start().Stop()
	}

	// an interrupted fetch must not leave staging directories behind, and
	// must never publish partial state
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cache.CleanupStaging()
		os.Exit(130)
	}()

	if err := Execute(); err != nil {
		return exitCode(err)
	}
	return 0
}

func main() {
	// the fast path answers exact-identifier lookups from pre-materialized
	// side-files in microseconds; anything else goes through the full
	// resolver
	if code, handled := fastPath(os.Args[1:]); handled {
		os.Exit(code)
	}
	// wrapping main allows realMain to use defer and still exit non-zero
	os.Exit(realMain())
}
