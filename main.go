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
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/ghostunnel/certinfo/certloader"
	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/pkg/errors"
)

// Initialized via -ldflags
var version = "master"

var defaultMetricsPrefix = "certinfo"

var (
	app         = kingpin.New("certinfo", "Inspect code-signing certificates (PKCS#12 or PEM) before using them to sign.")
	useSyslog   = app.Flag("syslog", "Send logs to syslog instead of stderr.").Envar("CERTINFO_SYSLOG").Bool()
	quiet       = app.Flag("quiet", "Silence log messages.").Short('q').Envar("CERTINFO_QUIET").Bool()
	useLandlock = app.Flag("landlock", "Restrict file system and network access with landlock (Linux only).").Envar("CERTINFO_LANDLOCK").Bool()

	// Inspect command
	inspectCommand = app.Command("inspect", "Print expiry, serial number and team ID of certificates.").Default()
	inspectPaths   = inspectCommand.Arg("path", "Certificate files (.p12 keystore with empty passphrase, or .pem).").Required().Strings()
	inspectJSON    = inspectCommand.Flag("json", "Print one JSON object per certificate.").Bool()
	inspectDump    = inspectCommand.Flag("dump", "Also print the full certificate (JSON).").Bool()

	// Check command
	checkCommand      = app.Command("check", "Verify that a certificate may be used for signing, exit non-zero otherwise.")
	checkPath         = checkCommand.Arg("path", "Certificate file (.p12 keystore with empty passphrase, or .pem).").Required().String()
	checkTeamIDs      = checkCommand.Flag("team-id", "Allow certificates with given team ID (can be repeated).").PlaceHolder("ID").Strings()
	checkSerials      = checkCommand.Flag("serial", "Allow certificates with given serial number in hex (can be repeated).").PlaceHolder("HEX").Strings()
	checkAllowExpired = checkCommand.Flag("allow-expired", "Accept expired certificates.").Bool()
	checkPolicy       = checkCommand.Flag("allow-policy", "Allow certificates accepted by the given OPA/rego policy file.").PlaceHolder("PATH").Envar("CERTINFO_POLICY").String()
	checkQuery        = checkCommand.Flag("allow-query", "Rego query to evaluate against the policy.").Default("data.certinfo.allow").Envar("CERTINFO_POLICY_QUERY").String()
	checkTimeout      = checkCommand.Flag("policy-timeout", "Timeout for policy evaluation.").Default("10s").Duration()

	// Watch command
	watchCommand    = app.Command("watch", "Reload certificates periodically and export their state.")
	watchPaths      = watchCommand.Arg("path", "Certificate files (.p12 keystore with empty passphrase, or .pem).").Required().Strings()
	watchInterval   = watchCommand.Flag("interval", "Check files for changes every interval.").Default("1m").Envar("CERTINFO_INTERVAL").Duration()
	statusAddress   = watchCommand.Flag("status", "Enable serving /_status and /_metrics on given HOST:PORT.").PlaceHolder("ADDR").Envar("CERTINFO_STATUS").String()
	graphiteAddress = watchCommand.Flag("graphite", "Collect metrics and report them to the given graphite instance (raw TCP).").PlaceHolder("ADDR").TCP()
	metricsPrefix   = watchCommand.Flag("metrics-prefix", fmt.Sprintf("Set prefix string for all reported metrics (default: %s).", defaultMetricsPrefix)).PlaceHolder("PREFIX").Default(defaultMetricsPrefix).String()
	watchTeamIDs    = watchCommand.Flag("team-id", "Report certificates with other team IDs as rejected (can be repeated).").PlaceHolder("ID").Strings()
	watchSerials    = watchCommand.Flag("serial", "Report certificates with other serial numbers as rejected (can be repeated).").PlaceHolder("HEX").Strings()
	watchPolicy     = watchCommand.Flag("allow-policy", "Report certificates not accepted by the given OPA/rego policy file as rejected.").PlaceHolder("PATH").Envar("CERTINFO_POLICY").String()
	watchQuery      = watchCommand.Flag("allow-query", "Rego query to evaluate against the policy.").Default("data.certinfo.allow").Envar("CERTINFO_POLICY_QUERY").String()
	watchNotify     = watchCommand.Flag("notify", "Also watch the containing directories for file system events (inotify/kqueue).").Envar("CERTINFO_NOTIFY").Bool()
)

// Global logger instance
var logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// Output for command results
var stdout io.Writer = os.Stdout

// Overridden in tests
var exitFunc = os.Exit

func initLogger(syslog, silent bool) error {
	switch {
	case silent:
		logger = log.New(io.Discard, "", 0)
		return nil
	case syslog:
		writer, err := gsyslog.NewLogger(gsyslog.LOG_INFO, "DAEMON", "certinfo")
		if err != nil {
			return errors.Wrap(err, "unable to set up syslog")
		}
		logger = log.New(writer, "", 0)
	default:
		logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	}

	// Set log prefix to process ID
	logger.SetPrefix(fmt.Sprintf("[%5d] ", os.Getpid()))
	return nil
}

// panicOnError panics if err is not nil
func panicOnError(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate flags for the check command
func validateCheckFlags(*kingpin.CmdClause) error {
	if *checkTimeout < 0 {
		return errors.New("--policy-timeout must not be negative")
	}
	if *checkPolicy != "" && *checkQuery == "" {
		return errors.New("--allow-policy requires a non-empty --allow-query")
	}
	return nil
}

// Validate flags for the watch command
func validateWatchFlags(*kingpin.CmdClause) error {
	if *watchInterval <= 0 {
		return errors.New("--interval must be positive")
	}
	if strings.TrimSpace(*metricsPrefix) == "" {
		return errors.New("--metrics-prefix must not be empty")
	}
	if *watchPolicy != "" && *watchQuery == "" {
		return errors.New("--allow-policy requires a non-empty --allow-query")
	}
	return nil
}

// sandboxFor lists the files and addresses the given command needs.
func sandboxFor(command string) sandbox {
	switch command {
	case inspectCommand.FullCommand():
		return sandbox{files: *inspectPaths}
	case checkCommand.FullCommand():
		return sandbox{files: []string{*checkPath, *checkPolicy}}
	case watchCommand.FullCommand():
		return sandbox{files: append([]string{*watchPolicy}, *watchPaths...), statusAddr: *statusAddress, graphiteAddr: *graphiteAddress}
	}
	return sandbox{}
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		logger.Printf("error: %s", err)
		exitFunc(1)
	}
}

func run(args []string) error {
	app.Version(fmt.Sprintf("rev %s built with %s", version, runtime.Version()))
	checkCommand.Validate(validateCheckFlags)
	watchCommand.Validate(validateWatchFlags)

	command, err := app.Parse(args)
	if err != nil {
		return errors.Wrap(err, "error parsing flags, try --help")
	}

	if err := initLogger(*useSyslog, *quiet); err != nil {
		return err
	}

	if *useLandlock {
		// Errors are logged, older kernels may lack landlock support
		_ = setupLandlock(sandboxFor(command))
	}

	loader := &certloader.Loader{Logger: logger}

	switch command {
	case inspectCommand.FullCommand():
		return inspect(stdout, loader, *inspectPaths, *inspectJSON, *inspectDump)
	case checkCommand.FullCommand():
		return check(context.Background(), stdout, loader, *checkPath, aclOptions{
			teamIDs:       *checkTeamIDs,
			serials:       *checkSerials,
			allowExpired:  *checkAllowExpired,
			policyPath:    *checkPolicy,
			policyQuery:   *checkQuery,
			policyTimeout: *checkTimeout,
		})
	case watchCommand.FullCommand():
		ctx, stop := signalContext(context.Background())
		defer stop()
		return watch(ctx, loader, *watchPaths, watchOptions{
			interval:     *watchInterval,
			statusAddr:   *statusAddress,
			graphiteAddr: *graphiteAddress,
			prefix:       *metricsPrefix,
			notify:       *watchNotify,
			acl: aclOptions{
				teamIDs:     *watchTeamIDs,
				serials:     *watchSerials,
				policyPath:  *watchPolicy,
				policyQuery: *watchQuery,
			},
		})
	}

	return fmt.Errorf("unknown command: %s", command)
}
