package rpcserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/netmon"
	"github.com/brainwires/aegis-wrap/pkg/pool"
	"github.com/brainwires/aegis-wrap/pkg/signalfile"
	"github.com/brainwires/aegis-wrap/pkg/state"
	"github.com/brainwires/aegis-wrap/pkg/supervisor"
)

// ToolHandler executes one named tool against raw JSON arguments.
type ToolHandler func(args json.RawMessage) toolResult

// toolDef pairs a catalogue entry's metadata with its handler, so
// tools/list and tools/call stay in sync by construction.
type toolDef struct {
	Name        string
	Description string
	Schema      inputSchema
	Handler     ToolHandler
}

// prop is shorthand for one JSON-schema property declaration.
func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

// catalogue builds the fixed 11-tool catalogue described in the
// control server's contract. The server's pool may be nil (pool tools
// then report "agent pool is not available"); the netmon tools read
// the supervisor's log file directly and report an all-zero summary
// when it does not exist.
func (s *Server) catalogue() []toolDef {
	return []toolDef{
		{"restart_claude", "Restart the supervised agent, optionally resuming with a prompt.", inputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"reason": prop("string", "Why the restart is being requested."),
				"prompt": prop("string", "An additional prompt argument to pass to the agent on its next launch."),
			},
		}, s.handleRestartClaude},
		{"server_status", "Report the supervisor's lifecycle, pid, and privilege state.", inputSchema{
			Type: "object", Properties: map[string]interface{}{},
		}, s.handleServerStatus},
		{"agent_spawn", "Spawn a sibling background agent for a task.", inputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"description":       prop("string", "Natural-language description of the task."),
				"agent_type":        prop("string", "Agent type to spawn (default claude)."),
				"working_directory": prop("string", "Working directory for the spawned agent."),
				"max_iterations":    prop("integer", "Iteration budget (default 50)."),
				"priority":          prop("string", "One of low, normal, high, urgent."),
			},
			Required: []string{"description"},
		}, s.handleAgentSpawn},
		{"agent_list", "List all sibling agents and their status.", inputSchema{
			Type: "object", Properties: map[string]interface{}{},
		}, s.handleAgentList},
		{"agent_status", "Get the status of a single sibling agent.", inputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"agent_id": prop("string", "Identifier returned by agent_spawn.")},
			Required:   []string{"agent_id"},
		}, s.handleAgentStatus},
		{"agent_await", "Block until a sibling agent completes, with an optional timeout.", inputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"agent_id":     prop("string", "Identifier returned by agent_spawn."),
				"timeout_secs": prop("integer", "Maximum seconds to wait (default 30)."),
			},
			Required: []string{"agent_id"},
		}, s.handleAgentAwait},
		{"agent_stop", "Stop a sibling agent.", inputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"agent_id": prop("string", "Identifier returned by agent_spawn.")},
			Required:   []string{"agent_id"},
		}, s.handleAgentStop},
		{"agent_pool_stats", "Report sibling agent pool population statistics.", inputSchema{
			Type: "object", Properties: map[string]interface{}{},
		}, s.handleAgentPoolStats},
		{"agent_file_locks", "List file locks currently held across sibling agents.", inputSchema{
			Type: "object", Properties: map[string]interface{}{},
		}, s.handleAgentFileLocks},
		{"netmon_status", "Summarize outbound network activity observed for the supervised agent.", inputSchema{
			Type: "object", Properties: map[string]interface{}{},
		}, s.handleNetmonStatus},
		{"netmon_log", "Return the tail of the raw network event log.", inputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"count": prop("integer", "Number of records to return (default 20).")},
		}, s.handleNetmonLog},
	}
}

func (s *Server) wrapperPID() (int, bool) {
	if s.selfIsSupervisor {
		return s.ownPID, true
	}
	return supervisor.FindAncestorSupervisor()
}

type restartArgs struct {
	Reason string  `json:"reason"`
	Prompt *string `json:"prompt"`
}

func (s *Server) handleRestartClaude(args json.RawMessage) toolResult {
	var parsed restartArgs
	_ = json.Unmarshal(args, &parsed)
	if parsed.Reason == "" {
		parsed.Reason = "MCP server restart requested"
	}

	pid, ok := s.wrapperPID()
	if !ok {
		return textResult("Could not find the supervisor process. Make sure this agent was started via aegis-wrap.", true)
	}

	if err := signalfile.WriteRestartSignal(pid, parsed.Reason, parsed.Prompt); err != nil {
		return textResult(fmt.Sprintf("Failed to write restart signal: %s", err), true)
	}

	promptNote := ""
	if parsed.Prompt != nil {
		promptNote = "\nA prompt will be auto-sent after restart."
	}
	return textResult(fmt.Sprintf(
		"Restart signal sent.\n\nSupervisor PID: %d\nReason: %s%s\nThe agent will restart momentarily and resume its session.",
		pid, parsed.Reason, promptNote,
	), false)
}

func (s *Server) handleServerStatus(_ json.RawMessage) toolResult {
	status := map[string]interface{}{
		"control_server_pid": s.ownPID,
	}

	pid, ok := s.wrapperPID()
	status["supervisor_running"] = false
	if ok {
		status["supervisor_pid"] = pid
		if doc, err := state.Read(pid); err == nil {
			status["supervisor_running"] = true
			status["lifecycle"] = doc.Lifecycle
			status["agent_name"] = doc.AgentName
			status["restart_count"] = doc.RestartCount
			status["uptime_secs"] = doc.UptimeSecs
			if doc.Health != nil {
				status["health"] = doc.Health
			}
		}
	}

	if priv := supervisor.GetPrivilegeInfo(); priv.IsRoot || priv.SudoUID != nil {
		status["privilege_info"] = priv
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return textResult(fmt.Sprintf("failed to marshal status: %s", err), true)
	}
	return textResult(string(data), false)
}

func (s *Server) handleAgentSpawn(args json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}

	var req struct {
		Description      string `json:"description"`
		AgentType        string `json:"agent_type"`
		WorkingDirectory string `json:"working_directory"`
		MaxIterations    uint32 `json:"max_iterations"`
		Priority         string `json:"priority"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return textResult(fmt.Sprintf("invalid arguments: %s", err), true)
	}
	if req.Description == "" {
		return textResult("description is required", true)
	}

	task := pool.NewTask(req.Description)
	if req.AgentType != "" {
		task.AgentType = req.AgentType
	}
	task.WorkingDirectory = req.WorkingDirectory
	if req.MaxIterations > 0 {
		task.MaxIterations = req.MaxIterations
	}
	if p, ok := parsePriority(req.Priority); ok {
		task.Priority = p
	}

	id, err := s.pool.Spawn(task)
	if err != nil {
		return textResult(err.Error(), true)
	}
	return textResult(fmt.Sprintf("Spawned agent %s", id), false)
}

func parsePriority(s string) (pool.Priority, bool) {
	switch s {
	case "low":
		return pool.PriorityLow, true
	case "normal":
		return pool.PriorityNormal, true
	case "high":
		return pool.PriorityHigh, true
	case "urgent":
		return pool.PriorityUrgent, true
	default:
		return pool.PriorityNormal, false
	}
}

func (s *Server) handleAgentList(_ json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	entries := s.pool.List()
	data, _ := json.MarshalIndent(entries, "", "  ")
	return textResult(string(data), false)
}

func (s *Server) handleAgentStatus(args json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	var req struct {
		AgentID string `json:"agent_id"`
	}
	_ = json.Unmarshal(args, &req)

	status, ok := s.pool.Status(req.AgentID)
	if !ok {
		return textResult(fmt.Sprintf("agent %s not found", req.AgentID), true)
	}
	return textResult(status.String(), false)
}

func (s *Server) handleAgentAwait(args json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	var req struct {
		AgentID    string  `json:"agent_id"`
		TimeoutSec *uint64 `json:"timeout_secs"`
	}
	_ = json.Unmarshal(args, &req)

	timeout := 30 * time.Second
	if req.TimeoutSec != nil {
		timeout = time.Duration(*req.TimeoutSec) * time.Second
	}

	result, err := s.pool.AwaitCompletionTimeout(req.AgentID, timeout)
	if err != nil {
		return textResult(fmt.Sprintf("error awaiting agent %s: %s", req.AgentID, err), true)
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	return textResult(string(data), false)
}

func (s *Server) handleAgentStop(args json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	var req struct {
		AgentID string `json:"agent_id"`
	}
	_ = json.Unmarshal(args, &req)

	if err := s.pool.Stop(s.ctx, req.AgentID); err != nil {
		return textResult(fmt.Sprintf("failed to stop agent %s: %s", req.AgentID, err), true)
	}
	return textResult(fmt.Sprintf("Stopped agent %s", req.AgentID), false)
}

func (s *Server) handleAgentPoolStats(_ json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	data, _ := json.MarshalIndent(s.pool.Stats(), "", "  ")
	return textResult(string(data), false)
}

func (s *Server) handleAgentFileLocks(_ json.RawMessage) toolResult {
	if s.pool == nil {
		return textResult("agent pool is not available", true)
	}
	data, _ := json.MarshalIndent(s.pool.LockManager().List(), "", "  ")
	return textResult(string(data), false)
}

func (s *Server) handleNetmonStatus(_ json.RawMessage) toolResult {
	pid, ok := s.wrapperPID()
	if !ok {
		return textResult("could not find the supervisor process", true)
	}
	events, err := netmon.ParseForWrapper(pid)
	if err != nil {
		return textResult(fmt.Sprintf("failed to read network log: %s", err), true)
	}
	summary := netmon.Summarize(events, 10)
	data, _ := json.MarshalIndent(summary, "", "  ")
	return textResult(string(data), false)
}

func (s *Server) handleNetmonLog(args json.RawMessage) toolResult {
	pid, ok := s.wrapperPID()
	if !ok {
		return textResult("could not find the supervisor process", true)
	}

	var req struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(args, &req)
	if req.Count <= 0 {
		req.Count = 20
	}

	events, err := netmon.ParseForWrapper(pid)
	if err != nil {
		return textResult(fmt.Sprintf("failed to read network log: %s", err), true)
	}
	tail := netmon.Tail(events, req.Count)
	data, _ := json.MarshalIndent(tail, "", "  ")
	return textResult(string(data), false)
}
