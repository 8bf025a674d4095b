// Package scheduler runs the bot's fixed-interval loops on robfig/cron.
//
// Every job is wrapped with cron.Recover and cron.SkipIfStillRunning, so a
// loop never overlaps itself and a panicking tick does not stop later ticks.
package scheduler
