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
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ghostunnel/certinfo/certloader"
)

type statusHandler struct {
	// Mutex for locking
	mu *sync.Mutex
	// Watched paths, in order
	paths []string
	// Last load result per path
	results map[string]certificateStatus
	// Current status
	watching  bool
	reloading bool
}

type certificateStatus struct {
	Path     string                      `json:"path"`
	Ok       bool                        `json:"ok"`
	Info     *certloader.CertificateInfo `json:"info,omitempty"`
	Error    string                      `json:"error,omitempty"`
	Rejected string                      `json:"rejected,omitempty"`
	LoadedAt time.Time                   `json:"loaded_at"`
}

type statusResponse struct {
	Ok           bool                `json:"ok"`
	Status       string              `json:"status"`
	Time         time.Time           `json:"time"`
	Hostname     string              `json:"hostname,omitempty"`
	Message      string              `json:"message"`
	Revision     string              `json:"revision"`
	Compiler     string              `json:"compiler"`
	Certificates []certificateStatus `json:"certificates"`
}

func newStatusHandler(paths []string) *statusHandler {
	return &statusHandler{
		mu:      &sync.Mutex{},
		paths:   paths,
		results: map[string]certificateStatus{},
	}
}

// Update records the outcome of loading path and, if an ACL is in use,
// of verifying it. A certificate is ok if it loaded, is not expired and
// was not rejected.
func (s *statusHandler) Update(path string, info certloader.CertificateInfo, loadErr, verifyErr error) {
	result := certificateStatus{
		Path:     path,
		LoadedAt: time.Now(),
	}
	switch {
	case loadErr != nil:
		result.Error = loadErr.Error()
	case verifyErr != nil:
		result.Info = &info
		result.Rejected = verifyErr.Error()
	default:
		result.Info = &info
		result.Ok = !info.IsExpired
	}

	s.mu.Lock()
	s.results[path] = result
	s.mu.Unlock()
}

func (s *statusHandler) Watching() {
	s.mu.Lock()
	s.watching = true
	s.reloading = false
	s.mu.Unlock()
}

func (s *statusHandler) Reloading() {
	s.mu.Lock()
	s.reloading = true
	s.mu.Unlock()
}

// Healthy reports whether every watched certificate is currently ok.
func (s *statusHandler) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshot()
	return ok
}

// snapshot must be called with mu held.
func (s *statusHandler) snapshot() ([]certificateStatus, bool) {
	ok := s.watching
	certs := make([]certificateStatus, 0, len(s.paths))
	for _, path := range s.paths {
		result, found := s.results[path]
		if !found {
			result = certificateStatus{Path: path, Error: "not loaded yet"}
		}
		ok = ok && result.Ok
		certs = append(certs, result)
	}
	return certs, ok
}

func (s *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Time:     time.Now(),
		Revision: version,
		Compiler: runtime.Version(),
	}

	s.mu.Lock()
	resp.Certificates, resp.Ok = s.snapshot()
	if !s.watching {
		resp.Message = "initializing"
	} else if s.reloading {
		resp.Message = "reloading"
	} else {
		resp.Message = "watching"
	}
	s.mu.Unlock()

	if resp.Ok {
		resp.Status = "ok"
	} else {
		resp.Status = "critical"
	}

	hostname, err := os.Hostname()
	if err == nil {
		resp.Hostname = hostname
	}

	out, err := json.Marshal(resp)
	panicOnError(err)

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_, _ = w.Write(out)
}
