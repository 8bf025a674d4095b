// Package embeds builds the rich messages the bot posts.
package embeds

import (
	"fmt"
	"strings"
	"time"

	"ebibot/internal/transport"
)

const (
	ColorReminder         = 0x00BFFF
	ColorClaude           = 0x7289DA
	ColorStartup          = 0x00BFFF
	ColorWatchdogWarn     = 0xFF6B6B
	ColorWatchdogDanger   = 0xFF4444
	ColorWatchdogCritical = 0xFF0000
	ColorSuccess          = 0x00FF00
)

const (
	FooterReminder = "EbiBot Reminder"
	FooterDefault  = "EbiBot"
	FooterWatchdog = "EbiBot Watchdog"
)

const (
	DefaultReminderTitle = "⏰ Reminder!"
	DefaultNotifyTitle   = "📢 Notification from Claude Code"
)

// maxWatchdogTasks is how many tasks one alert lists before "...and N more".
const maxWatchdogTasks = 15

type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityDanger   Severity = "danger"
	SeverityCritical Severity = "critical"
)

type tier struct {
	title string
	color int
}

var tiers = map[Severity]tier{
	SeverityWarn:     {"Hey!! You have overdue tasks!!", ColorWatchdogWarn},
	SeverityDanger:   {"Wait!! Are you slacking off??", ColorWatchdogDanger},
	SeverityCritical: {"🚨🚨🚨 This is bad!! Way too much left undone!!", ColorWatchdogCritical},
}

// SeverityFor maps a count of newly overdue tasks to an alert tier.
func SeverityFor(count int) Severity {
	switch {
	case count >= 6:
		return SeverityCritical
	case count >= 3:
		return SeverityDanger
	default:
		return SeverityWarn
	}
}

// Reminder builds a scheduled reminder. A zero color keeps ColorReminder.
func Reminder(message, title string, color int) transport.Embed {
	if title == "" {
		title = DefaultReminderTitle
	}
	if color == 0 {
		color = ColorReminder
	}
	return transport.Embed{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      FooterReminder,
		Timestamp:   time.Now(),
	}
}

// Notify builds an immediate notification posted through the API.
func Notify(message, title string, color int) transport.Embed {
	if title == "" {
		title = DefaultNotifyTitle
	}
	if color == 0 {
		color = ColorClaude
	}
	return transport.Embed{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      FooterDefault,
		Timestamp:   time.Now(),
	}
}

func Startup() transport.Embed {
	return transport.Embed{
		Title:       "🎉 I'm up!",
		Description: "EbiBot is running.\nThe REST API is ready too!",
		Color:       ColorStartup,
		Footer:      FooterDefault,
		Timestamp:   time.Now(),
	}
}

// Task is one overdue task line.
type Task struct {
	Content string
	Due     string
}

// Watchdog builds the aggregated overdue alert. The tier follows len(tasks).
func Watchdog(tasks []Task) transport.Embed {
	count := len(tasks)
	t := tiers[SeverityFor(count)]

	lines := make([]string, 0, min(count, maxWatchdogTasks)+1)
	for i, task := range tasks {
		if i == maxWatchdogTasks {
			break
		}
		content := task.Content
		if content == "" {
			content = "???"
		}
		lines = append(lines, fmt.Sprintf("- **%s**  (due: %s)", content, task.Due))
	}
	if count > maxWatchdogTasks {
		lines = append(lines, fmt.Sprintf("...and %d more", count-maxWatchdogTasks))
	}

	return transport.Embed{
		Title:       t.title,
		Description: fmt.Sprintf("You have **%d overdue tasks**!!\n\n%s", count, strings.Join(lines, "\n")),
		Color:       t.color,
		Footer:      FooterWatchdog,
		Timestamp:   time.Now(),
	}
}

// ScheduleConfirm acknowledges a /remind. when is already formatted for display.
func ScheduleConfirm(message, when string) transport.Embed {
	return transport.Embed{
		Title:       "✅ Reminder booked!",
		Description: fmt.Sprintf("I'll ping you at **%s**.\n\n> %s", when, message),
		Color:       ColorSuccess,
		Footer:      FooterReminder,
		Timestamp:   time.Now(),
	}
}

// CodeBlock wraps output in a fenced block, cut to at most limit bytes.
func CodeBlock(output string, limit int) string {
	if limit > 0 && len(output) > limit {
		output = truncateUTF8(output, limit)
	}
	return "```\n" + output + "\n```"
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back up to a rune boundary
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
