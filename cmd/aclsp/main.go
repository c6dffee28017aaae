/*
Command aclsp is the Language Server Protocol (LSP) server for autoconf
scripts such as configure.ac and aclocal.m4.

# Installation

To install the latest version of aclsp, run:

	go install blake.io/autoconf/cmd/aclsp@latest

# Supported Features

aclsp supports the following LSP features:

  - Diagnostics: Lexical and structural problems, argument counts of the m4
    builtins, and macros used before their definition
  - Document Symbols: An outline of macro calls and shell constructs
  - Folding Ranges: Constructs, multi-line macro calls and comment blocks
  - Hover: The comment above an AC_DEFUN, AU_DEFUN or m4_define
  - Go to Definition: Navigate from a macro call to its definition
  - Find References: Locate all calls of a macro
  - Semantic Tokens: Highlighting for comments, keywords, macro calls and
    shell variables

# Configuration

At initialization aclsp reads the nearest .autoconf.toml, .autoconf.yaml or
.autoconf.yml in the workspace root or its parents. The lsp.log_level
setting controls what is logged to stderr.

# Editor Setup

aclsp communicates over stdin/stdout using the LSP protocol. Configure your
editor to run aclsp as the language server for autoconf files.

# Neovim

Using the built-in client (Neovim 0.8+), add to your init.lua:

	vim.api.nvim_create_autocmd('FileType', {
		pattern = 'config',
		callback = function()
			vim.lsp.start({
				name = 'aclsp',
				cmd = {'aclsp'},
				root_dir = vim.fs.dirname(vim.fs.find({'configure.ac'}, {upward = true})[1]),
			})
		end,
	})

# Helix

Add to languages.toml:

	[[language]]
	name = "autoconf"
	scope = "source.autoconf"
	file-types = ["ac", "m4"]
	roots = ["configure.ac"]
	language-servers = ["aclsp"]

	[language-server.aclsp]
	command = "aclsp"

# Emacs

Using eglot:

	(add-to-list 'eglot-server-programs '(autoconf-mode . ("aclsp")))
*/
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"blake.io/autoconf/internal/config"
)

// JSON-RPC error codes
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

func main() {
	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	s := newServer(os.Stdin, os.Stdout, log)
	s.level = level
	if err := s.run(); err != nil {
		var e exitError
		if errors.As(err, &e) {
			os.Exit(e.code)
		}
		fmt.Fprintf(os.Stderr, "aclsp: %v\n", err)
		os.Exit(1)
	}
}

// Server

type server struct {
	r        *bufio.Reader
	w        *bufio.Writer
	docs     map[string]*document
	cfg      *config.Config
	log      *slog.Logger
	level    *slog.LevelVar // nil if the level is fixed
	shutdown bool
}

func newServer(r io.Reader, w io.Writer, log *slog.Logger) *server {
	return &server{
		r:    bufio.NewReader(r),
		w:    bufio.NewWriter(w),
		docs: make(map[string]*document),
		cfg:  config.Default(),
		log:  log,
	}
}

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

func (s *server) run() error {
	for {
		data, err := s.readMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var msg request
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("bad message", "err", err)
			s.sendError(nil, codeParseError, err.Error())
			continue
		}
		if err := s.dispatch(&msg); err != nil {
			return err
		}
	}
}

func (s *server) dispatch(msg *request) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		return s.handleExit()
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/definition":
		return s.handleDefinition(msg)
	case "textDocument/references":
		return s.handleReferences(msg)
	case "textDocument/documentSymbol":
		return s.handleDocumentSymbol(msg)
	case "textDocument/foldingRange":
		return s.handleFoldingRange(msg)
	case "textDocument/semanticTokens/full":
		return s.handleSemanticTokens(msg)
	case "$/cancelRequest", "$/setTrace", "workspace/didChangeConfiguration":
		return nil
	default:
		s.log.Debug("unsupported method", "method", msg.Method)
		if msg.ID != nil {
			return s.sendError(msg.ID, codeMethodNotFound, fmt.Sprintf("unsupported method %q", msg.Method))
		}
		return nil
	}
}

// Handlers

func (s *server) handleInitialize(msg *request) error {
	var p struct {
		RootURI string `json:"rootUri"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, err.Error())
		}
	}
	if dir := uriPath(p.RootURI); dir != "" {
		cfg, err := config.ForDir(dir)
		if err != nil {
			s.log.Warn("loading configuration", "err", err)
		} else {
			s.cfg = cfg
		}
	}
	if s.level != nil {
		s.level.Set(s.cfg.LogLevel())
	}
	s.log.Info("initialized", "root", p.RootURI, "config", s.cfg.File)

	// Static response - capabilities don't change
	const result = `{
		"capabilities": {
			"textDocumentSync": {"openClose": true, "change": 1},
			"hoverProvider": true,
			"referencesProvider": true,
			"definitionProvider": true,
			"documentSymbolProvider": true,
			"foldingRangeProvider": true,
			"semanticTokensProvider": {
				"legend": {"tokenTypes": ["comment", "keyword", "function", "variable", "parameter"], "tokenModifiers": []},
				"full": true
			}
		},
		"serverInfo": {"name": "aclsp"}
	}`
	return s.replyRaw(msg.ID, json.RawMessage(result))
}

func (s *server) handleShutdown(msg *request) error {
	s.shutdown = true
	return s.reply(msg.ID, nil)
}

func (s *server) handleExit() error {
	if s.shutdown {
		return exitError{0}
	}
	return exitError{1}
}

func (s *server) handleDidOpen(msg *request) error {
	var p struct {
		TextDocument struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		} `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		s.log.Warn("didOpen", "err", err)
		return nil
	}
	doc := newDocument(p.TextDocument.URI, p.TextDocument.Text, s.cfg)
	s.docs[p.TextDocument.URI] = doc
	s.logParse(doc)
	return s.publishDiagnostics(doc)
}

func (s *server) handleDidChange(msg *request) error {
	var p struct {
		TextDocument   textDocumentIdentifier `json:"textDocument"`
		ContentChanges []struct {
			Text string `json:"text"`
		} `json:"contentChanges"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		s.log.Warn("didChange", "err", err)
		return nil
	}
	doc := s.docs[p.TextDocument.URI]
	if doc == nil || len(p.ContentChanges) == 0 {
		return nil
	}
	doc.setText(p.ContentChanges[len(p.ContentChanges)-1].Text)
	s.logParse(doc)
	return s.publishDiagnostics(doc)
}

func (s *server) logParse(doc *document) {
	s.log.Debug("parsed", "uri", doc.uri, "calls", len(doc.calls), "definitions", len(doc.defs), "problems", len(doc.problems))
}

func (s *server) handleDidClose(msg *request) error {
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return nil
	}
	delete(s.docs, p.TextDocument.URI)
	return nil
}

func (s *server) handleHover(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
		Position     position               `json:"position"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	doc := s.docs[p.TextDocument.URI]
	if doc == nil {
		return s.reply(msg.ID, nil)
	}
	name, rng, ok := doc.symbolAt(p.Position.Line, p.Position.Character)
	if !ok {
		return s.reply(msg.ID, nil)
	}
	def := doc.defs[name]
	if def == nil || def.doc == "" {
		return s.reply(msg.ID, nil)
	}
	return s.reply(msg.ID, struct {
		Contents markupContent `json:"contents"`
		Range    lspRange      `json:"range,omitempty"`
	}{
		Contents: markupContent{Kind: "markdown", Value: def.doc},
		Range:    rng.toLSP(),
	})
}

func (s *server) handleDefinition(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
		Position     position               `json:"position"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	doc := s.docs[p.TextDocument.URI]
	if doc == nil {
		return s.reply(msg.ID, nil)
	}
	name, _, ok := doc.symbolAt(p.Position.Line, p.Position.Character)
	if !ok {
		return s.reply(msg.ID, nil)
	}
	def, ok := doc.defs[name]
	if !ok {
		return s.reply(msg.ID, nil)
	}
	return s.reply(msg.ID, location{
		URI:   doc.uri,
		Range: doc.span(def.start, def.end).toLSP(),
	})
}

func (s *server) handleReferences(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
		Position     position               `json:"position"`
		Context      struct {
			IncludeDeclaration bool `json:"includeDeclaration"`
		} `json:"context"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	doc := s.docs[p.TextDocument.URI]
	if doc == nil {
		return s.reply(msg.ID, nil)
	}
	name, _, ok := doc.symbolAt(p.Position.Line, p.Position.Character)
	if !ok {
		return s.reply(msg.ID, nil)
	}
	refs := doc.references(name, p.Context.IncludeDeclaration)
	locs := make([]location, len(refs))
	for i, ref := range refs {
		locs[i] = location{URI: doc.uri, Range: ref.toLSP()}
	}
	return s.reply(msg.ID, locs)
}

func (s *server) handleDocumentSymbol(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	syms := []documentSymbol{}
	if doc := s.docs[p.TextDocument.URI]; doc != nil {
		syms = append(syms, doc.symbols(doc.root)...)
	}
	return s.reply(msg.ID, syms)
}

func (s *server) handleFoldingRange(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	ranges := []foldingRange{}
	if doc := s.docs[p.TextDocument.URI]; doc != nil {
		ranges = append(ranges, doc.foldingRanges()...)
	}
	return s.reply(msg.ID, ranges)
}

func (s *server) handleSemanticTokens(msg *request) error {
	if msg.ID == nil {
		return nil
	}
	var p struct {
		TextDocument textDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, err.Error())
	}
	var data []uint32
	if doc := s.docs[p.TextDocument.URI]; doc != nil {
		data = doc.semanticTokens()
	}
	if data == nil {
		data = []uint32{}
	}
	return s.reply(msg.ID, struct {
		Data []uint32 `json:"data"`
	}{Data: data})
}

func (s *server) publishDiagnostics(doc *document) error {
	diags := make([]diagnostic, len(doc.problems))
	for i, p := range doc.problems {
		diags[i] = diagnostic{
			Range:    doc.span(p.start, p.end).toLSP(),
			Severity: p.severity,
			Source:   "aclsp",
			Code:     p.code,
			Message:  p.msg,
		}
	}
	return s.notify("textDocument/publishDiagnostics", struct {
		URI         string       `json:"uri"`
		Diagnostics []diagnostic `json:"diagnostics"`
	}{
		URI:         doc.uri,
		Diagnostics: diags,
	})
}

// uriPath returns the file system path of a file URI, or "".
func uriPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}

// Protocol I/O

func (s *server) readMessage() ([]byte, error) {
	var contentLen int
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "content-length") {
			contentLen, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	if contentLen == 0 {
		return nil, fmt.Errorf("missing Content-Length")
	}
	data := make([]byte, contentLen)
	_, err := io.ReadFull(s.r, data)
	return data, err
}

func (s *server) writeMessage(data []byte) error {
	fmt.Fprintf(s.w, "Content-Length: %d\r\n\r\n", len(data))
	s.w.Write(data)
	return s.w.Flush()
}

func (s *server) reply(id json.RawMessage, result any) error {
	data, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{JSONRPC: "2.0", ID: id, Result: result})
	if err != nil {
		return err
	}
	return s.writeMessage(data)
}

func (s *server) replyRaw(id json.RawMessage, result json.RawMessage) error {
	data, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result,omitempty"`
	}{JSONRPC: "2.0", ID: id, Result: result})
	if err != nil {
		return err
	}
	return s.writeMessage(data)
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *server) sendError(id json.RawMessage, code int, message string) error {
	data, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   *responseError  `json:"error,omitempty"`
	}{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &responseError{Code: code, Message: message},
	})
	if err != nil {
		return err
	}
	return s.writeMessage(data)
}

func (s *server) notify(method string, params any) error {
	data, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return err
	}
	return s.writeMessage(data)
}

// LSP Protocol Types

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type location struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
}

type markupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type diagnostic struct {
	Range    lspRange `json:"range"`
	Severity int      `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Source   string   `json:"source,omitempty"`
	Message  string   `json:"message"`
}

type documentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          lspRange         `json:"range"`
	SelectionRange lspRange         `json:"selectionRange"`
	Children       []documentSymbol `json:"children,omitempty"`
}

type foldingRange struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Kind      string `json:"kind,omitempty"`
}
