// Command certinfo reads code-signing certificates and reports whether they
// have expired, their serial number and the signing team ID (the last
// organizational unit in the subject). Certificates are read from PKCS#12
// keystores with an empty passphrase (".p12") or PEM files (".pem").
//
// The inspect command prints this information, check verifies a certificate
// against allow lists or an OPA policy before it is used for signing, and
// watch keeps reloading certificates and exports their state on a status
// endpoint and as metrics.
package main
