/*
DESCRIPTION
  watch.go reloads the SCTE-104 filter table when the configuration file
  changes.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/scte104"
)

// filterSetter is implemented by *ingest.Ingest.
type filterSetter interface {
	SetFilters(rules []scte104.Rule) error
}

// watchConfig applies the Filters variable of the configuration file at path
// to in whenever the file is written, until ctx is cancelled. The directory
// is watched so that files replaced by editors are picked up.
func watchConfig(ctx context.Context, path string, in filterSetter, log logging.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create config watcher: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	err = w.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("could not watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			reloadFilters(path, in, log)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warning("config watcher error", "error", err.Error())
		}
	}
}

// reloadFilters reads the filter rules from the file at path and applies
// them. An absent Filters variable clears the table.
func reloadFilters(path string, in filterSetter, log logging.Logger) {
	vars, err := readVars(path)
	if err != nil {
		log.Warning("could not reload config", "error", err.Error())
		return
	}
	c := config.Config{Logger: log}
	c.Update(vars)
	err = in.SetFilters(c.Filters)
	if err != nil {
		log.Error("could not apply filters", "error", err.Error())
		return
	}
	log.Info("filters reloaded", "rules", len(c.Filters))
}
