//go:build linux

/*-
 * Copyright 2024, Ghostunnel
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
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/landlock-lsm/go-landlock/landlock"
)

// sandbox lists what a command needs to touch once flags are parsed.
type sandbox struct {
	// Files read (certificates, policies)
	files []string
	// Address the status server binds to
	statusAddr string
	// Graphite address we connect to
	graphiteAddr *net.TCPAddr
}

// setupLandlock limits the process to reading the given files and to the
// network access the command needs.
func setupLandlock(s sandbox) error {
	fsRules := []landlock.Rule{}

	// syslog and temporary files
	for _, path := range []string{"/dev", "/var/run", "/tmp"} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		fsRules = append(fsRules, landlock.RWDirs(path))
	}

	// name resolution and time zones
	for _, path := range []string{"/etc", "/usr/share/zoneinfo"} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		fsRules = append(fsRules, landlock.RODirs(path))
	}

	fsRules = append(fsRules, fileRules(s.files)...)

	netRules := []landlock.Rule{
		// For DNS over TCP/53 (sometimes enabled for name resolution)
		landlock.ConnectTCP(53),
	}
	if rule := ruleFromHostPort(s.statusAddr, true); rule != nil {
		netRules = append(netRules, rule)
	}
	if rule := ruleFromTCPAddress(s.graphiteAddr, false); rule != nil {
		netRules = append(netRules, rule)
	}

	config := landlock.V4.BestEffort()
	if err := config.RestrictPaths(fsRules...); err != nil {
		logger.Printf("warning: unable to set up landlock filesystem rules: %v", err)
		return err
	}
	if err := config.RestrictNet(netRules...); err != nil {
		logger.Printf("warning: unable to set up landlock network rules: %v", err)
		return err
	}
	return nil
}

// fileRules grants read access to the parent directory of each file, so
// that files replaced by a rename can still be reloaded. Symlink targets
// get the same treatment. Directories that do not exist yet are skipped
// instead of failing the whole ruleset.
func fileRules(files []string) []landlock.Rule {
	rules := []landlock.Rule{}
	for _, path := range files {
		if path == "" {
			continue
		}
		rules = append(rules, landlock.RODirs(filepath.Dir(path)).IgnoreIfMissing())

		target, err := filepath.EvalSymlinks(path)
		if err != nil || target == path {
			continue
		}
		rules = append(rules, landlock.RODirs(filepath.Dir(target)).IgnoreIfMissing())
	}
	return rules
}

func ruleFromHostPort(addr string, bind bool) landlock.Rule {
	if addr == "" {
		return nil
	}
	_, portString, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil || port == 0 {
		return nil
	}
	return portRule(uint16(port), bind)
}

func ruleFromTCPAddress(addr *net.TCPAddr, bind bool) landlock.Rule {
	if addr == nil || addr.Port <= 0 || addr.Port > 65535 {
		return nil
	}
	return portRule(uint16(addr.Port), bind)
}

func portRule(port uint16, bind bool) landlock.Rule {
	if bind {
		return landlock.BindTCP(port)
	}
	return landlock.ConnectTCP(port)
}
