// Command msctl talks to a running material-search server.
//
// Usage:
//
//	msctl status
//	msctl scan
//	msctl search [--video] [--top N] <text>
//	msctl hash-password
//	msctl version
//
// The server address is taken from --server or MSCTL_SERVER. When login is
// enabled on the server, pass --username and set MSCTL_PASSWORD.
package main
