package netmon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netmon.jsonl")
	var data string
	for _, l := range lines {
		data += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestParseMissingFileReturnsNilNoError(t *testing.T) {
	events, err := Parse(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.NoError(t, err)
	assert.Nil(t, events)
}

func TestParseSkipsMalformedLines(t *testing.T) {
	path := writeLog(t, []string{
		`{"event":"connect","ts":1,"fd":3,"addr":"1.2.3.4","port":443,"result":0}`,
		`not json at all`,
		`{"event":"close","ts":2,"fd":3,"result":0}`,
	})

	events, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindConnect, events[0].Kind)
	assert.Equal(t, KindClose, events[1].Kind)
}

func TestSummarizeCountsConnectsAndBytes(t *testing.T) {
	path := writeLog(t, []string{
		`{"event":"connect","ts":1,"fd":3,"addr":"1.1.1.1","port":443,"result":0}`,
		`{"event":"connect","ts":2,"fd":4,"addr":"1.1.1.1","port":443,"result":0}`,
		`{"event":"connect","ts":3,"fd":5,"addr":"2.2.2.2","port":80,"result":0}`,
		`{"event":"send","ts":4,"fd":3,"result":100}`,
		`{"event":"recv","ts":5,"fd":3,"result":200}`,
		`{"event":"sendto","ts":6,"fd":5,"result":-1}`,
	})
	events, err := Parse(path)
	require.NoError(t, err)

	sum := Summarize(events, 10)
	assert.Equal(t, 3, sum.TotalConnects)
	assert.Equal(t, 2, sum.UniqueAddresses)
	assert.EqualValues(t, 100, sum.BytesSent)
	assert.EqualValues(t, 200, sum.BytesReceived)
	require.Len(t, sum.TopTargets, 2)
	assert.Equal(t, "1.1.1.1:443", sum.TopTargets[0].Target)
	assert.Equal(t, 2, sum.TopTargets[0].Count)
}

func TestSummarizeEmptyEventsIsAllZero(t *testing.T) {
	sum := Summarize(nil, 10)
	assert.Equal(t, 0, sum.TotalConnects)
	assert.Equal(t, 0, sum.UniqueAddresses)
	assert.Empty(t, sum.TopTargets)
	assert.Equal(t, "0 B", sum.BytesSentHuman)
}

func TestSummarizeTopNTruncates(t *testing.T) {
	events := []Event{}
	addrs := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	port := uint16(443)
	for _, a := range addrs {
		addr := a
		events = append(events, Event{Kind: KindConnect, Addr: &addr, Port: &port})
	}
	sum := Summarize(events, 2)
	assert.Len(t, sum.TopTargets, 2)
}

func TestTail(t *testing.T) {
	events := []Event{{Kind: KindConnect, TS: 1}, {Kind: KindConnect, TS: 2}, {Kind: KindConnect, TS: 3}}
	assert.Len(t, Tail(events, 2), 2)
	assert.Equal(t, uint64(3), Tail(events, 2)[1].TS)
	assert.Len(t, Tail(events, 0), 3)
	assert.Len(t, Tail(events, 10), 3)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "999 B", FormatBytes(999))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "1.0 MB", FormatBytes(1024*1024))
}

func TestLogPath(t *testing.T) {
	path := LogPath(4242)
	assert.Contains(t, path, "4242")
	assert.Contains(t, path, ".jsonl")
}
