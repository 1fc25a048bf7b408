// Package mcp exposes the trading operations as MCP tools over
// newline-delimited JSON-RPC 2.0 on stdio. Every tool calls the worker hop
// with one session id fixed at startup.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Server is an MCP tool server.
type Server struct {
	worker      Worker
	sessionID   string
	version     string
	initialized bool
	tools       map[string]*tool
	order       []string
}

// NewServer creates a tool server bound to one trading session.
func NewServer(worker Worker, sessionID, version string) *Server {
	s := &Server{
		worker:    worker,
		sessionID: sessionID,
		version:   version,
		tools:     make(map[string]*tool),
	}
	for _, t := range builtinTools() {
		s.tools[t.name] = t
		s.order = append(s.order, t.name)
	}
	return s
}

// Run processes requests from input until EOF or ctx is cancelled. Each
// request occupies a single line.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	encoder := json.NewEncoder(output)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := writeError(encoder, json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); writeErr != nil {
				return fmt.Errorf("writing parse error response: %w", writeErr)
			}
			continue
		}

		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if writeErr := writeError(encoder, req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); writeErr != nil {
					return fmt.Errorf("writing version error response: %w", writeErr)
				}
			}
			continue
		}

		if req.isNotification() {
			continue
		}

		if err := s.dispatch(ctx, encoder, &req); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, encoder *json.Encoder, req *request) error {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(encoder, req)
	case "ping":
		return writeResult(encoder, req.ID, map[string]any{})
	case "tools/list":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsList(encoder, req)
	case "tools/call":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsCall(ctx, encoder, req)
	default:
		return writeError(encoder, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for initialize")
	}

	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}
	log.Debug().Str("client", params.ClientInfo.Name).Str("protocol", params.ProtocolVersion).Msg("MCP client connected")

	s.initialized = true

	return writeResult(encoder, req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    serverCapabilities{Tools: &struct{}{}},
		ServerInfo:      serverInfo{Name: "neo-trading", Version: s.version},
	})
}

func (s *Server) handleToolsList(encoder *json.Encoder, req *request) error {
	descriptions := make([]toolDescription, 0, len(s.order))
	for _, name := range s.order {
		t := s.tools[name]
		descriptions = append(descriptions, toolDescription{
			Name:        t.name,
			Description: t.description,
			InputSchema: t.inputSchema,
			Annotations: &toolAnnotations{
				ReadOnlyHint:    boolPtr(t.readOnly),
				DestructiveHint: boolPtr(!t.readOnly),
			},
		})
	}
	return writeResult(encoder, req.ID, toolsListResult{Tools: descriptions})
}

func (s *Server) handleToolsCall(ctx context.Context, encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for tools/call")
	}

	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	t, ok := s.tools[params.Name]
	if !ok {
		return writeError(encoder, req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	output, err := t.run(ctx, s.worker, s.sessionID, params.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", t.name).Msg("Tool call failed")
		return writeResult(encoder, req.ID, toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: toolErrorText(err)}},
			IsError: true,
		})
	}

	return writeResult(encoder, req.ID, toolsCallResult{
		Content: []contentBlock{{Type: "text", Text: string(output)}},
	})
}

func boolPtr(value bool) *bool {
	return &value
}

func writeResult(encoder *json.Encoder, id json.RawMessage, result any) error {
	return encoder.Encode(response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func writeError(encoder *json.Encoder, id json.RawMessage, code int, message string) error {
	return encoder.Encode(response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}
