package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/cursorgate/pkg/config"
)

// NewServerConfig builds the listener TLS configuration for cfg. The
// certificate is served through the returned reloader, so a renewed
// certificate is picked up once reloader.Start is running.
//
//	tlsCfg, reloader, err := tls.NewServerConfig(cfg.Server.TLS)
//	if err != nil {
//	    return err
//	}
//	go reloader.Start(ctx)
//	srv.TLSConfig = tlsCfg
func NewServerConfig(cfg config.TLSConfig) (*tls.Config, *CertificateReloader, error) {
	if !cfg.Enabled {
		return nil, nil, fmt.Errorf("TLS is not enabled")
	}
	if cfg.CertFile == "" {
		return nil, nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if cfg.KeyFile == "" {
		return nil, nil, fmt.Errorf("key_file is required when TLS is enabled")
	}

	reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err := reloader.reload(); err != nil {
		return nil, nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	reloader.logCertificateInfo()

	// #nosec G402 - MinVersion is validated to be TLS 1.2 or 1.3
	tlsConfig := &tls.Config{
		MinVersion:     parseTLSVersion(cfg.MinVersion),
		GetCertificate: reloader.GetCertificateFunc(),
		NextProtos:     []string{"h2", "http/1.1"},
	}
	return tlsConfig, reloader, nil
}

// parseTLSVersion converts "1.2" or "1.3" to a tls version constant.
// Anything else yields TLS 1.3.
func parseTLSVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}
