// Package logging provides leveled, printf-style logging on top of log/slog.
//
// The level is read once from DEBUG or LOG_LEVEL. Output is rendered by the
// tint handler with colors on a terminal; set LOG_NO_COLOR=true to disable them.
package logging
