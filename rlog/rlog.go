// Package rlog is a thin severity-prefixed wrapper over the standard log
// package. The teacher never reaches for a structured logging library —
// every diagnostic in the original kernel module is a printk call with a
// KERN_* prefix — so this keeps that register rather than introducing a
// new logging abstraction.
package rlog

import (
	"log"

	"golang.org/x/text/message"
)

const (
	// prefixInfo marks routine diagnostics.
	prefixInfo = "REWIRE: "
	// prefixWarning marks a recovered error (a command failed, a
	// reference count went out of range).
	prefixWarning = "REWIRE WARNING: "
	// prefixAlert marks a condition that leaves the backend unusable.
	prefixAlert = "REWIRE ALERT: "
)

var printer = message.NewPrinter(message.MatchLanguage("en"))

// Info logs a routine diagnostic.
func Info(format string, args ...any) {
	log.Printf(prefixInfo+format, args...)
}

// Warning logs a recovered error. Matches the spec's "logged and ignored"
// requirement for out-of-range usage-count adjustments and CREATE_PAGE_IDS
// allocation failures.
func Warning(format string, args ...any) {
	log.Printf(prefixWarning+format, args...)
}

// Alert logs a condition after which the backend object must be dropped.
func Alert(format string, args ...any) {
	log.Printf(prefixAlert+format, args...)
}

// Counts formats a page/byte count pair with thousands separators, used
// by the run summaries of portable's SyncToPT and kchannel's updatePageRange.
func Counts(label string, pages int, bytes int64) string {
	return printer.Sprintf("%s: %d pages (%d bytes)", label, pages, bytes)
}
