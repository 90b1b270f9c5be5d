// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the mylocations service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/mylocations/internal/config"
	"github.com/wneessen/mylocations/internal/i18n"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/service"
	"github.com/wneessen/mylocations/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	accuracy := flag.Float64("accuracy", -1, "desired accuracy in meters (overrides the config)")
	once := flag.Bool("once", false, "acquire the location once, print it and exit")
	tag := flag.Bool("tag", false, "acquire the location once and save it as a tagged location")
	description := flag.String("description", "", "description of the tagged location")
	category := flag.String("category", store.DefaultCategory, "category of the tagged location")
	list := flag.Bool("list", false, "list all tagged locations and exit")
	flag.Parse()

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if *accuracy >= 0 {
		conf.Acquisition.DesiredAccuracy = *accuracy
	}
	if *tag && !store.ValidCategory(*category) {
		log.Error("invalid category", slog.String("category", *category),
			slog.Any("categories", store.Categories))
		os.Exit(1)
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize mylocations service", logger.Err(err))
		os.Exit(1)
	}
	defer serv.Close()

	switch {
	case *list:
		if err = listRecords(ctx, serv); err != nil {
			log.Error("failed to list tagged locations", logger.Err(err))
			os.Exit(1)
		}
	case *once || *tag:
		snap, err := serv.RunOnce(ctx)
		if err != nil {
			log.Error("failed to acquire location", logger.Err(err))
			os.Exit(1)
		}
		if !*tag {
			return
		}
		record, err := serv.Tag(ctx, snap, *description, *category)
		if err != nil {
			log.Error("failed to tag location", logger.Err(err))
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, serv.RenderRecord(*record))
	default:
		log.Info("starting mylocations service", slog.String("version", version),
			slog.String("commit", commit), slog.String("date", date))
		if err = serv.Run(ctx); err != nil {
			log.Error("failed to start mylocations service", logger.Err(err))
		}
		log.Info("shutting down mylocations service")
	}
}

// loadConfig reads the config from confPath, the default location or the environment,
// in that order.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func listRecords(ctx context.Context, serv *service.Service) error {
	records, err := serv.Records(ctx)
	if err != nil {
		return err
	}
	for i, record := range records {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(serv.RenderRecord(record))
	}
	return nil
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "mylocations", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
