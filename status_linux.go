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
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify sends the given assignments to systemd as a single message.
// Without NOTIFY_SOCKET this is a no-op.
func sdNotify(assignments ...string) {
	_, _ = daemon.SdNotify(false, strings.Join(assignments, "\n"))
}

func systemdNotifyStatus(status string) {
	sdNotify("STATUS=" + status)
}

func systemdNotifyReady() {
	sdNotify(daemon.SdNotifyReady)
}

func systemdNotifyReloading() {
	sdNotify(daemon.SdNotifyReloading, "STATUS=reloading certificates")
}

func systemdNotifyStopping() {
	sdNotify(daemon.SdNotifyStopping, "STATUS=shutting down")
}

// systemdHandleWatchdog pings the systemd watchdog at half its interval for
// as long as the watched certificates are healthy. Returns nil right away
// if the watchdog is not enabled for this unit.
func systemdHandleWatchdog(ctx context.Context, isHealthy func() bool) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return err
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := isHealthy()
		if now != healthy {
			if now {
				logger.Printf("certificates healthy again, resuming watchdog pings")
			} else {
				logger.Printf("certificates unhealthy, withholding watchdog pings")
			}
			healthy = now
		}
		if healthy {
			sdNotify(daemon.SdNotifyWatchdog)
		}
	}
}
