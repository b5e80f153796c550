// Package report renders a finished migration run as a Markdown document
// and as a compact console summary.
package report
