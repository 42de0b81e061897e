package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brainwires/aegis-wrap/pkg/config"
)

const mcpBackupSuffix = ".aegis-backup"

// mcpServerEntry is the shape of one entry under .mcp.json's
// "mcpServers" map. Only the fields this supervisor needs to inject
// are modeled; the rest of the document is decoded into a generic map,
// so other entries and top-level keys survive injection, and restore
// writes the backup's bytes back unchanged.
type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// injectControlServer adds this supervisor's own control server as an
// MCP server entry in dir/.mcp.json, first backing up any existing
// file so it can be restored byte-for-byte later. If the backup file
// already exists (a previous run crashed before restoring), that
// backup is treated as authoritative and is not overwritten, so a
// sequence of crashes never compounds into losing the user's original
// config.
func injectControlServer(dir, selfExecutable string) error {
	target := filepath.Join(dir, ".mcp.json")
	backup := target + mcpBackupSuffix

	if _, err := os.Stat(backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := backupExisting(target, backup); err != nil {
			return err
		}
	}

	doc := map[string]interface{}{}
	if data, err := os.ReadFile(backup); err == nil {
		_ = json.Unmarshal(data, &doc)
	}

	data, err := mergeControlServerEntry(doc, selfExecutable)
	if err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// mergeControlServerEntry adds this supervisor's own control server
// entry to doc's "mcpServers" map and renders the result, without
// touching any file. Shared by injectControlServer's in-place rewrite
// and buildOverlayDocument's filesystem-overlay rendering, so the two
// independent MCP-injection mechanisms always agree on the entry's
// shape.
func mergeControlServerEntry(doc map[string]interface{}, selfExecutable string) ([]byte, error) {
	servers, _ := doc["mcpServers"].(map[string]interface{})
	if servers == nil {
		servers = map[string]interface{}{}
	}
	servers["aegis-wrap"] = mcpServerEntry{
		Command: selfExecutable,
		Args:    []string{"--mcp-server"},
	}
	doc["mcpServers"] = servers
	return json.MarshalIndent(doc, "", "  ")
}

// buildOverlayDocument renders dir/.mcp.json with the control server
// entry merged in, without writing to the real file or its backup.
// This is the content AEGIS_MCP_OVERLAY points the interposed child
// at: the filesystem-overlay mechanism spec.md §4.1/§4.2 describes,
// which coexists with (and doesn't depend on) the in-place rewrite
// above.
func buildOverlayDocument(dir, selfExecutable string) ([]byte, error) {
	target := filepath.Join(dir, ".mcp.json")
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(target); err == nil {
		_ = json.Unmarshal(data, &doc)
	}
	return mergeControlServerEntry(doc, selfExecutable)
}

// writeOverlayFile renders buildOverlayDocument's content to a file
// under the OS temp directory scoped to this supervisor's pid, and
// returns its path for AEGIS_MCP_OVERLAY. The caller is responsible for
// removing it on shutdown.
func writeOverlayFile(dir, selfExecutable string, pid int) (string, error) {
	data, err := buildOverlayDocument(dir, selfExecutable)
	if err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-mcp-overlay-%d.json", config.ProductPrefix, pid))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func backupExisting(target, backup string) error {
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No prior config: a zero-byte backup lets
			// restoreControlServer tell "nothing was here" from
			// "something was here", by removing the target on restore.
			return os.WriteFile(backup, []byte{}, 0o644)
		}
		return err
	}
	return os.WriteFile(backup, data, 0o644)
}

// restoreControlServer reverts dir/.mcp.json to its pre-injection
// contents and removes the backup marker. Safe to call even if
// injectControlServer was never called or already restored.
func restoreControlServer(dir string) error {
	target := filepath.Join(dir, ".mcp.json")
	backup := target + mcpBackupSuffix

	data, err := os.ReadFile(backup)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing injected config: %w", err)
		}
	} else if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("restoring config: %w", err)
	}

	return os.Remove(backup)
}
