// Package config provides configuration management for cursorgate.
//
// Configuration is read from an optional YAML file, completed with defaults,
// overridden from the environment, and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("cursorgate.yaml")
//
// # Environment Variable Overrides
//
// Variables follow the naming convention CURSORGATE_SECTION_FIELD:
//
//   - CURSORGATE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CURSORGATE_UPSTREAM_BASE_URL overrides upstream.base_url
//   - CURSORGATE_CREDENTIALS_INVALID_FILE overrides credentials.invalid_file
//   - CURSORGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The variables used by earlier deployments are honored as well: PORT sets
// the listen port, API_KEYS holds a JSON object mapping each API key to a
// cookie or a list of cookies, and x-cursor-checksum (or CURSOR_CHECKSUM)
// fixes the upstream checksum.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:3010"
//	upstream:
//	  base_url: "https://api2.cursor.sh"
//	  connect_timeout: 5s
//	  read_timeout: 30s
//	credentials:
//	  invalid_file: data/invalid_cookies.json
//	  rotate_schedule: "*/10 * * * *"
//	  api_keys:
//	    sk-team-a: "user_01::eyJhbGciOi..."
//	    sk-team-b:
//	      - "user_02%3A%3AeyJhbGciOi..."
//	      - "user_03::eyJhbGciOi..."
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
package config
