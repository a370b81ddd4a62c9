/*-
 * Copyright 2015 Square Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"crypto/sha256"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchTimed polls the given files every interval and sends on notify
// whenever the contents of any of them changed.
func watchTimed(ctx context.Context, files []string, interval time.Duration, notify chan<- bool) {
	hashes := hashFiles(files)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := hashFiles(files)
			if maps.Equal(hashes, current) {
				continue
			}
			logger.Printf("detected change in certificate files, reloading")
			hashes = current
			signalChange(notify)
		}
	}
}

// watchAuto watches the directories holding the given files and sends on
// notify for events touching one of them. Watching the directory keeps
// working when a file is replaced by a rename.
func watchAuto(ctx context.Context, files []string, notify chan<- bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create file watcher")
	}
	defer watcher.Close()

	watched := map[string]bool{}
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return errors.Wrapf(err, "unable to resolve %s", file)
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return errors.Wrapf(err, "unable to watch %s", filepath.Dir(abs))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			logger.Printf("found new %s (%s), reloading", event.Name, event.Op)
			signalChange(notify)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Printf("error watching file: %s", err)
		}
	}
}

// hashFiles returns a content hash per file. Unreadable files hash to
// the zero value, so they count as changed once they appear.
func hashFiles(files []string) map[string][sha256.Size]byte {
	hashes := make(map[string][sha256.Size]byte, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			hashes[file] = [sha256.Size]byte{}
			continue
		}
		hashes[file] = sha256.Sum256(data)
	}
	return hashes
}

// signalChange sends on notify without blocking; pending notifications
// are coalesced.
func signalChange(notify chan<- bool) {
	select {
	case notify <- true:
	default:
	}
}
