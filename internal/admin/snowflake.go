package admin

import (
	"fmt"
	"strconv"
	"time"
)

// DiscordEpoch is 2015-01-01T00:00:00Z in Unix milliseconds.
const DiscordEpoch = 1420070400000

// CreatedAt decodes the creation time embedded in a snowflake id.
func CreatedAt(id string) (time.Time, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("snowflake %q: %w", id, err)
	}
	return time.UnixMilli(int64(n>>22) + DiscordEpoch).UTC(), nil
}

// ageDays is the number of whole days between created and now.
func ageDays(created, now time.Time) int {
	return int(now.Sub(created) / (24 * time.Hour))
}
