//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Go mg.Namespace
type Git mg.Namespace
type Test mg.Namespace

var Default = Go.Build

// printf prints the given format and args if verbose mode is enabled.
func printf(format string, args ...interface{}) {
	if mg.Verbose() {
		fmt.Printf(format, args...)
	}
}

// Build builds the certinfo binary.
func (Go) Build(ctx context.Context) error {
	version := os.Getenv("VERSION")
	if version == "" {
		version = getVersion()
	}

	return sh.Run("go", "build", "-ldflags", fmt.Sprintf("-X main.version=%s", version), "-o", "certinfo", ".")
}

// Man generates the certinfo man page from the built binary.
func (Go) Man(ctx context.Context) error {
	mg.CtxDeps(ctx, Go.Build)

	output, err := sh.Output("./certinfo", "--help-man")
	if err != nil {
		return fmt.Errorf("failed to generate man page: %w", err)
	}

	return os.WriteFile("certinfo.man", []byte(output), 0644)
}

// Clean removes build artifacts.
func (Git) Clean(ctx context.Context) error {
	return sh.Run("git", "clean", "-Xdf")
}

// All runs the unit tests, then merges coverage.
func (Test) All(ctx context.Context) error {
	mg.CtxDeps(ctx, Test.Unit)
	mg.CtxDeps(ctx, Test.Coverage)
	return nil
}

// Unit runs the unit tests.
func (Test) Unit(ctx context.Context) error {
	printf("Running unit tests...\n")

	if err := os.MkdirAll("coverage", 0755); err != nil {
		return fmt.Errorf("failed to create coverage directory: %w", err)
	}

	return sh.Run("go", "test", "-v", "-covermode=count", "-coverpkg", ".,./auth,./certloader,./policy", "-coverprofile=coverage/unit-test.profile", "./...")
}

// Integration runs the binary against the given arguments through
// TestIntegrationMain, recording coverage. Arguments are read from the
// CERTINFO_INTEGRATION_ARGS environment variable (JSON array).
func (Test) Integration(ctx context.Context) error {
	if err := os.MkdirAll("coverage", 0755); err != nil {
		return fmt.Errorf("failed to create coverage directory: %w", err)
	}

	if os.Getenv("CERTINFO_INTEGRATION_ARGS") == "" {
		return fmt.Errorf("CERTINFO_INTEGRATION_ARGS must be set")
	}

	env := map[string]string{"CERTINFO_INTEGRATION_TEST": "true"}
	return sh.RunWith(env, "go", "test", "-run", "TestIntegrationMain", "-covermode=count", "-coverpkg", ".,./auth,./certloader,./policy", "-coverprofile=coverage/integration-test.profile", ".")
}

// Coverage merges the coverage files into a single file.
func (Test) Coverage(ctx context.Context) error {
	coverageFiles, err := filepath.Glob("coverage/*.profile")
	if err != nil || len(coverageFiles) == 0 {
		return fmt.Errorf("failed to find coverage files: %w", err)
	}

	args := []string{"tool", "gocovmerge"}
	args = append(args, coverageFiles...)

	mergeOutput, err := sh.Output("go", args...)
	if err != nil {
		return fmt.Errorf("failed to merge coverage: %w", err)
	}

	return os.WriteFile("coverage/all.profile", []byte(mergeOutput), 0644)
}

// Keys generates a self-signed code-signing certificate for manual testing,
// as a PEM file and a PKCS#12 keystore with an empty passphrase. These
// should NOT be used in production.
func (Test) Keys(ctx context.Context) error {
	if err := os.MkdirAll("test-keys", 0755); err != nil {
		return err
	}

	commands := [][]string{
		{"openssl", "req", "-x509", "-newkey", "rsa:2048", "-nodes", "-days", "365",
			"-keyout", "test-keys/signing-key.pem", "-out", "test-keys/signing-cert.pem",
			"-subj", "/CN=Developer ID Application: Test/OU=Signing/OU=TEAMID123",
			"-addext", "extendedKeyUsage=codeSigning"},
		{"openssl", "pkcs12", "-export", "-out", "test-keys/signing.p12",
			"-in", "test-keys/signing-cert.pem", "-inkey", "test-keys/signing-key.pem", "-passout", "pass:"},
	}
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		if err := sh.Run(cmd[0], cmd[1:]...); err != nil {
			return err
		}
	}

	printf("Test keys generated successfully in test-keys/ directory\n")
	return nil
}

// getVersion gets the version from git describe.
func getVersion() string {
	output, err := sh.Output("git", "describe", "--always", "--dirty")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(output)
}
