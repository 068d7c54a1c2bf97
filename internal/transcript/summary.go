package transcript

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CommandStat aggregates one protocol command across the transcript.
type CommandStat struct {
	Command  string
	Count    int
	Failures int
}

// Summary is the diagnostics rollup of a transcript database.
type Summary struct {
	Total    int
	Inbound  int
	Outbound int
	Failures int
	Commands []CommandStat
	First    time.Time
	Last     time.Time
}

// Summarize aggregates the transcript for a diagnostics report.
func (s *Store) Summarize() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Summary

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(direction = 'inbound'), 0),
		       COALESCE(SUM(direction = 'outbound'), 0),
		       COALESCE(SUM(success = 0), 0),
		       COALESCE(MIN(ts), 0),
		       COALESCE(MAX(ts), 0)
		FROM traffic`)
	var first, last int64
	if err := row.Scan(&out.Total, &out.Inbound, &out.Outbound, &out.Failures, &first, &last); err != nil {
		return Summary{}, fmt.Errorf("summarize transcript: %w", err)
	}
	if out.Total > 0 {
		out.First = time.UnixMilli(first)
		out.Last = time.UnixMilli(last)
	}

	rows, err := s.db.Query(`
		SELECT command, COUNT(*), COALESCE(SUM(success = 0), 0)
		FROM traffic GROUP BY command`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize transcript commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cs CommandStat
		if err := rows.Scan(&cs.Command, &cs.Count, &cs.Failures); err != nil {
			return Summary{}, err
		}
		out.Commands = append(out.Commands, cs)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	sort.Slice(out.Commands, func(i, j int) bool {
		if out.Commands[i].Count != out.Commands[j].Count {
			return out.Commands[i].Count > out.Commands[j].Count
		}
		return out.Commands[i].Command < out.Commands[j].Command
	})
	return out, nil
}

// Render formats the summary as a human-readable report.
func (s Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "messages: %d (%d in / %d out), failures: %d\n",
		s.Total, s.Inbound, s.Outbound, s.Failures)
	if s.Total > 0 {
		fmt.Fprintf(&b, "window: %s .. %s\n",
			s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	}
	for _, cs := range s.Commands {
		fmt.Fprintf(&b, "  %-24s %6d", cs.Command, cs.Count)
		if cs.Failures > 0 {
			fmt.Fprintf(&b, "  (%d failed)", cs.Failures)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
