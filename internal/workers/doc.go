// Package workers sizes worker pools from the CPUs available to the process.
package workers
