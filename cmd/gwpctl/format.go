package main

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// formatBytes renders n with digit grouping, e.g. "12,288 bytes".
func formatBytes(n uint64) string {
	return printer.Sprintf("%d bytes", n)
}

// formatCount renders n with digit grouping.
func formatCount(n uint64) string {
	return printer.Sprintf("%d", n)
}
