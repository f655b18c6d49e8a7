// Package startup loads configuration and owns the startup and shutdown
// log output.
//
// # Configuration
//
// [Load] reads options from the environment. When CONFIG_FILE names a YAML
// file, its keys (case-insensitive, e.g. assets_path) fill in anything the
// environment leaves unset; sequences are joined with commas:
//
//	assets_path: [/photos, /videos]
//	skip_path: /photos/.trash
//	frame_interval: 4
//	auto_scan: true
//
// Invalid values log a warning and fall back to the default. Unknown
// database drivers and malformed PASSWORD_HASH values are errors.
//
// [LoadConfig] additionally prints the banner, logs every effective option
// and prepares the database and upload directories.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed by
// [GetBuildInfo].
package startup
