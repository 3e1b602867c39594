// Package tls terminates HTTPS for the gateway listener.
//
// NewServerConfig loads the configured certificate pair and returns a
// crypto/tls configuration that serves it through a CertificateReloader.
// Running reloader.Start replaces the certificate whenever either file's
// modification time moves forward; a renewal that fails to parse or is not
// yet valid is logged and the previous certificate stays in service.
package tls
