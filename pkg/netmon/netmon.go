// Package netmon reads and summarizes the append-only JSONL audit log
// written by the interposition library (hooks/). It never writes to the
// log — that is the exclusive responsibility of the preloaded library
// running inside the supervised child.
package netmon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/brainwires/aegis-wrap/pkg/config"
)

// LogPath is the path the interposition library appends to for a given
// supervisor pid.
func LogPath(wrapperPID int) string {
	return fmt.Sprintf("/tmp/%s-netmon-%d.jsonl", config.ProductPrefix, wrapperPID)
}

// Kind discriminates the variants of Event.
type Kind string

const (
	KindConnect  Kind = "connect"
	KindSend     Kind = "send"
	KindRecv     Kind = "recv"
	KindRecvFrom Kind = "recvfrom"
	KindSendTo   Kind = "sendto"
	KindClose    Kind = "close"
)

// Event is one parsed line of the audit log. Only the fields relevant
// to the event's Kind are populated; this mirrors the discriminated
// union in spec.md §3 without requiring a Go sum type.
type Event struct {
	Kind   Kind    `json:"event"`
	TS     uint64  `json:"ts"`
	FD     int32   `json:"fd"`
	Addr   *string `json:"addr,omitempty"`
	Port   *uint16 `json:"port,omitempty"`
	Family *string `json:"family,omitempty"`
	Bytes  *int    `json:"bytes,omitempty"`
	Result int64   `json:"result"`
}

// Parse reads the log file at path into an ordered sequence of events.
// Malformed lines are skipped silently, matching the library's
// best-effort write contract — an interrupted append must never corrupt
// the rest of the log for readers.
func Parse(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParseForWrapper is a convenience wrapper around Parse using the
// conventional log path for a given wrapper pid.
func ParseForWrapper(wrapperPID int) ([]Event, error) {
	return Parse(LogPath(wrapperPID))
}

// Summary aggregates the parsed log the way netmon_status reports it.
type Summary struct {
	TotalConnects    int            `json:"total_connects"`
	UniqueAddresses  int            `json:"unique_addresses"`
	BytesSent        uint64         `json:"bytes_sent"`
	BytesReceived    uint64         `json:"bytes_received"`
	BytesSentHuman   string         `json:"bytes_sent_human"`
	BytesRecvHuman   string         `json:"bytes_received_human"`
	TopTargets       []TargetCount  `json:"top_targets"`
}

// TargetCount is one entry of the top-N connect-target ranking, keyed
// by "<address>:<port>".
type TargetCount struct {
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// Summarize computes a Summary over a parsed event sequence. An absent
// or empty log yields an all-zero summary, per spec.md's boundary
// behaviour.
func Summarize(events []Event, topN int) Summary {
	var sum Summary
	addresses := map[string]struct{}{}
	targets := map[string]int{}

	for _, ev := range events {
		switch ev.Kind {
		case KindConnect:
			sum.TotalConnects++
			if ev.Addr != nil {
				addresses[*ev.Addr] = struct{}{}
				port := uint16(0)
				if ev.Port != nil {
					port = *ev.Port
				}
				key := fmt.Sprintf("%s:%d", *ev.Addr, port)
				targets[key]++
			}
		case KindSend, KindSendTo:
			if ev.Result > 0 {
				sum.BytesSent += uint64(ev.Result)
			}
		case KindRecv, KindRecvFrom:
			if ev.Result > 0 {
				sum.BytesReceived += uint64(ev.Result)
			}
		}
	}

	sum.UniqueAddresses = len(addresses)
	sum.BytesSentHuman = FormatBytes(sum.BytesSent)
	sum.BytesRecvHuman = FormatBytes(sum.BytesReceived)

	for target, count := range targets {
		sum.TopTargets = append(sum.TopTargets, TargetCount{Target: target, Count: count})
	}
	sort.Slice(sum.TopTargets, func(i, j int) bool {
		if sum.TopTargets[i].Count != sum.TopTargets[j].Count {
			return sum.TopTargets[i].Count > sum.TopTargets[j].Count
		}
		return sum.TopTargets[i].Target < sum.TopTargets[j].Target
	})
	if topN > 0 && len(sum.TopTargets) > topN {
		sum.TopTargets = sum.TopTargets[:topN]
	}

	return sum
}

// Tail returns the last count parsed records, in original order.
func Tail(events []Event, count int) []Event {
	if count <= 0 || count >= len(events) {
		return events
	}
	return events[len(events)-count:]
}

// FormatBytes renders a byte count using binary-kilobyte units, per
// spec.md §4.7.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), units[exp])
}
