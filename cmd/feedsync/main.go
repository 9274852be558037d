// Package main is the entry point for feedsync.
package main

import (
	"os"

	"github.com/openwrt-feedsync/feedsync/cmd/feedsync/app"
	"github.com/openwrt-feedsync/feedsync/internal/logger"
)

func main() {
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
