package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/brainwires/aegis-wrap/pkg/pool"
	"github.com/sirupsen/logrus"
)

// Server hosts the control server's JSON-RPC tool catalogue over a
// pair of stdio-shaped streams. A Server with a nil pool still serves
// restart_claude, server_status, and netmon tools — the pool-backed
// tools report "not available" rather than panicking, since not every
// invocation of --mcp-server runs alongside a sibling-agent pool.
type Server struct {
	ctx context.Context
	log *logrus.Entry
	pool *pool.Pool

	ownPID           int
	selfIsSupervisor bool

	tools map[string]toolDef

	writeMu sync.Mutex
}

// New builds a control server. If selfIsSupervisor is true, ownPID is
// used directly as the wrapper pid for every tool that needs one
// (this process *is* the supervisor, serving --mcp-server inline,
// rather than a detached process spawned under the supervised agent).
func New(ctx context.Context, log *logrus.Entry, p *pool.Pool, ownPID int, selfIsSupervisor bool) *Server {
	s := &Server{ctx: ctx, log: log, pool: p, ownPID: ownPID, selfIsSupervisor: selfIsSupervisor}
	s.tools = make(map[string]toolDef, 11)
	for _, def := range s.catalogue() {
		s.tools[def.Name] = def
	}
	return s
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is cancelled. Each line
// is handled synchronously and in order, matching the original MCP
// server's single-threaded stdin loop.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, hasResp := s.HandleLine(line)
		if !hasResp {
			continue
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("marshaling response: %w", err)
		}

		s.writeMu.Lock()
		_, writeErr := w.Write(append(data, '\n'))
		s.writeMu.Unlock()
		if writeErr != nil {
			return fmt.Errorf("writing response: %w", writeErr)
		}
	}
	return scanner.Err()
}

// HandleLine is the pure dispatch core: given one raw JSON-RPC request
// line, it returns the Response to emit (if any) and whether a
// response is expected at all (notifications, like "initialized",
// produce none).
func (s *Server) HandleLine(line []byte) (Response, bool) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("skipping unparseable control server request line")
		}
		return Response{}, false
	}

	if req.Method == "" || req.Method == "initialized" {
		return Response{}, false
	}

	switch req.Method {
	case "initialize":
		return s.respond(req.ID, s.handleInitialize()), true
	case "ping":
		return s.respond(req.ID, map[string]interface{}{}), true
	case "tools/list":
		return s.respond(req.ID, s.handleToolsList()), true
	case "tools/call":
		return s.respond(req.ID, s.handleToolsCall(req.Params)), true
	default:
		return Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: codeMethodNotFound, Message: "Method not found: " + req.Method},
		}, true
	}
}

func (s *Server) respond(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) handleInitialize() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "aegis-wrap",
			"version": "dev",
		},
	}
}

type toolListEntry struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema inputSchema `json:"inputSchema"`
}

type inputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

func (s *Server) handleToolsList() map[string]interface{} {
	entries := make([]toolListEntry, 0, len(s.tools))
	for _, def := range s.catalogue() {
		entries = append(entries, toolListEntry{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema,
		})
	}
	return map[string]interface{}{"tools": entries}
}

func (s *Server) handleToolsCall(params json.RawMessage) toolResult {
	var call toolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return textResult("Missing or invalid params", true)
	}

	def, ok := s.tools[call.Name]
	if !ok {
		return textResult(fmt.Sprintf("Unknown tool: %s", call.Name), true)
	}
	return def.Handler(call.Arguments)
}
