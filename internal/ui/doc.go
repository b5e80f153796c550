// Package ui renders command and migration progress as human-readable console
// lines while structured fields continue to flow through zap.
package ui
