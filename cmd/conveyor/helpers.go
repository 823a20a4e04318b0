package main

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"conveyor/internal/command"
	"conveyor/internal/queue"
)

var titleCaser = cases.Title(language.English)

func formatLockState(item *queue.Item) string {
	if !item.Locked(time.Now().UTC()) {
		return "no"
	}
	return "until " + formatTimestamp(*item.LockedUntil)
}

func displaySegment(segment string) string {
	if segment == "" {
		return "-"
	}
	return titleCaser.String(segment)
}

func displayStatus(status queue.Status) string {
	return titleCaser.String(string(status))
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTimestamp(*ts)
}

func formatAssignee(assignee string) string {
	if assignee == "" {
		return "-"
	}
	return assignee
}

func itemRow(item *queue.Item) []string {
	return []string{
		strconv.FormatInt(item.ID, 10),
		item.ExternalRef,
		truncate(item.Title, 40),
		displaySegment(item.Segment),
		displayStatus(item.Status),
		strconv.Itoa(item.Priority),
		formatAssignee(item.AssignedTo),
		formatTimestamp(item.UpdatedAt),
	}
}

var itemHeaders = []string{"ID", "Ref", "Title", "Segment", "Status", "Priority", "Assignee", "Updated"}

var itemAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

// commandFor builds the completion mutation for an item at its current
// version. Version races against a concurrent writer surface as conflicts.
func commandFor(item *queue.Item, agentID, note string) command.Command {
	return command.Command{
		ItemID:          item.ID,
		ExpectedVersion: item.Version,
		Status:          queue.StatusCompleted,
		Actor:           agentID,
		Note:            note,
	}
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}
