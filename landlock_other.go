//go:build !linux

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

import "net"

type sandbox struct {
	files        []string
	statusAddr   string
	graphiteAddr *net.TCPAddr
}

// setupLandlock is a no-op, landlock is only available on Linux.
func setupLandlock(_ sandbox) error {
	logger.Printf("warning: landlock is not supported on this platform")
	return nil
}
