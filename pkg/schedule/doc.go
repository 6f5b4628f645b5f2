// Package schedule runs journal retention on a recurring schedule.
//
// Schedules are built with Every, Daily or Parse (a five-field cron
// expression); a Pruner deletes finished invocations older than its
// retention each time the schedule fires.
package schedule
