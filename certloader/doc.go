// Package certloader reads code-signing certificates from PKCS#12 archives
// and PEM files and extracts the facts a signing workflow checks before use:
// whether the certificate is expired, its serial number and its team ID.
package certloader
