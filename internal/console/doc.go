// Package console renders snapshots for a terminal.
package console
