// Package state implements the shared-state document: the flat JSON
// file the supervisor publishes on every lifecycle transition and
// health sample, and that the dashboard and control server read.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/sasha-s/go-deadlock"
)

// Lifecycle is the supervisor's coarse-grained lifecycle state.
type Lifecycle string

const (
	Starting   Lifecycle = "starting"
	Running    Lifecycle = "running"
	Restarting Lifecycle = "restarting"
	Stopped    Lifecycle = "stopped"
	Failed     Lifecycle = "failed"
)

// HealthSnapshot is the watchdog's most recent observation of the
// supervised child, published as part of the state document.
type HealthSnapshot struct {
	ActivityAgeSecs      uint64  `json:"activity_age_secs"`
	MemoryMB             uint64  `json:"memory_mb"`
	CPUPercent           float64 `json:"cpu_percent"`
	UnresponsiveCount    uint32  `json:"unresponsive_count"`
	PendingRemediation   string  `json:"pending_remediation,omitempty"`
}

// Document is the whole-file contents published to the shared-state
// path. Every write is a whole-file overwrite; readers tolerate a
// partial read mid-write by retrying (see Read).
type Document struct {
	WrapperPID    int              `json:"wrapper_pid"`
	ChildPID      *int             `json:"child_pid,omitempty"`
	AgentName     string           `json:"agent_name"`
	Lifecycle     Lifecycle        `json:"lifecycle"`
	RestartCount  uint32           `json:"restart_count"`
	Health        *HealthSnapshot  `json:"health,omitempty"`
	UptimeSecs    uint64           `json:"uptime_secs"`
	StartedAtUnix int64            `json:"started_at_unix"`
}

// Path is the path the supervisor publishes its document to.
func Path(wrapperPID int) string {
	return fmt.Sprintf("/tmp/%s-state-%d", config.ProductPrefix, wrapperPID)
}

// Publisher owns the in-memory document and serializes writes to disk.
// The deadlock-instrumented mutex matches the teacher's own use of
// sasha-s/go-deadlock for shared mutable GUI state (pkg/gui/gui.go).
type Publisher struct {
	mu   deadlock.Mutex
	doc  Document
	path string
}

// NewPublisher creates a shared-state publisher for this supervisor's
// own pid and writes the initial "starting" document.
func NewPublisher(wrapperPID int, agentName string) *Publisher {
	p := &Publisher{
		path: Path(wrapperPID),
		doc: Document{
			WrapperPID:    wrapperPID,
			AgentName:     agentName,
			Lifecycle:     Starting,
			StartedAtUnix: time.Now().Unix(),
		},
	}
	_ = p.flush()
	return p
}

// Update mutates the document under lock and republishes it. mutate may
// read and write any field except WrapperPID and StartedAtUnix, which
// are fixed at construction.
func (p *Publisher) Update(mutate func(*Document)) error {
	p.mu.Lock()
	mutate(&p.doc)
	p.doc.UptimeSecs = uint64(time.Now().Unix() - p.doc.StartedAtUnix)
	snapshot := p.doc
	p.mu.Unlock()

	return writeDocument(p.path, snapshot)
}

func (p *Publisher) flush() error {
	p.mu.Lock()
	snapshot := p.doc
	p.mu.Unlock()
	return writeDocument(p.path, snapshot)
}

// writeDocument performs a whole-file overwrite via a temp-file rename,
// so concurrent readers never observe a half-written document.
func writeDocument(path string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes the shared-state document. Called on clean shutdown;
// the document's absence means "supervisor is not running".
func (p *Publisher) Delete() error {
	return os.Remove(p.path)
}

// Read loads the shared-state document for a given wrapper pid,
// retrying a bounded number of times on parse failure to tolerate a
// reader racing a concurrent (non-atomic-at-the-filesystem-level)
// write. Returns os.ErrNotExist if the supervisor is not running.
func Read(wrapperPID int) (*Document, error) {
	return readPath(Path(wrapperPID))
}

func readPath(path string) (*Document, error) {
	const retries = 5
	var lastErr error
	for i := 0; i < retries; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			lastErr = err
			time.Sleep(10 * time.Millisecond)
			continue
		}
		return &doc, nil
	}
	return nil, fmt.Errorf("reading state document: %w", lastErr)
}
