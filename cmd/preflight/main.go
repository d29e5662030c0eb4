// Command preflight sanity-checks the environment before a deploy.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backupwatch/backupwatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		warn("DATABASE_URL empty — monitor will use the in-memory store and lose state on restart.")
	} else {
		ok("DATABASE_URL present")
	}

	cfg := config.FromEnv()

	if cfg.CheckInterval < time.Minute {
		warn(fmt.Sprintf("CHECK_INTERVAL=%s is very aggressive for backup cadences.", cfg.CheckInterval))
	} else {
		ok("CHECK_INTERVAL=" + cfg.CheckInterval.String())
	}
	if cfg.DefaultTolerance >= cfg.DefaultJobInterval {
		warn("CHECK_DEFAULT_TOLERANCE >= CHECK_DEFAULT_INTERVAL — jobs may never be flagged overdue.")
	}

	channels, err := config.LoadChannels(cfg.ChannelFile)
	if err != nil {
		fail("channel file invalid: " + err.Error())
	}
	if len(channels) == 0 {
		warn("no channels configured (" + cfg.ChannelFile + " missing or empty) — detection only, no alerts.")
	} else {
		names := make([]string, 0, len(channels))
		for _, c := range channels {
			names = append(names, c.Name+"("+c.Type+")")
		}
		ok("channels: " + strings.Join(names, ", "))
	}

	ok("preflight passed")
}
