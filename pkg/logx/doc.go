// Package logx wraps zerolog: readable console lines with a short caller,
// JSON in the log file, and outputs that can be swapped while running.
package logx
