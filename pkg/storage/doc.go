// Package storage provides the GORM-backed invocation journal.
//
// GormStorage implements core.Journal against any GORM dialect; Open
// understands the two the parent CLI is configured with, "sqlite" and
// "postgres".
package storage
