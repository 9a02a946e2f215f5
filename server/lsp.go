// Package server implements a Language Server Protocol front end for
// trashdsl documents: diagnostics from the compiler, completion, hover,
// go-to-definition and references.
package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/trashdsl/compiler"
	"github.com/chazu/trashdsl/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "trash-lsp"

// documentBlock is the code block name documents are compiled under.
const documentBlock = "main"

var log = commonlog.GetLogger("trashdsl.server")

// LspServer bridges LSP editor features to the trashdsl compiler via Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. setup prepares the environment every
// document is compiled against.
func NewLSP(setup func(*vm.Environment)) *LspServer {
	s := &LspServer{
		worker:  NewWorker(setup),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("trashdsl LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	return s.worker.Do(func(env *vm.Environment) any {
		return complete(analyze(env, text), prefix)
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(env *vm.Environment) any {
		return hover(analyze(env, text), word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	occurrences := identifierRanges(text, word)
	if len(occurrences) == 0 {
		return nil, nil
	}
	// Names are declared by their first assignment, which always comes
	// before any use.
	return []protocol.Location{{URI: uri, Range: occurrences[0]}}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	var locations []protocol.Location
	for _, r := range identifierRanges(text, word) {
		locations = append(locations, protocol.Location{URI: uri, Range: r})
	}
	return locations, nil
}

// --- Compiler-backed logic (called on worker goroutine) ---

// analysis is the outcome of compiling one document.
type analysis struct {
	env   *vm.Environment
	err   *compiler.CompileError
	hints []compiler.Hint
}

func analyze(env *vm.Environment, text string) *analysis {
	a := &analysis{env: env}
	c := compiler.New(env)
	if _, err := c.Compile(documentBlock, text); err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			a.err = cerr
		} else {
			a.err = &compiler.CompileError{Block: documentBlock, Line: 1, Col: 1, Msg: err.Error()}
		}
		log.Debugf("document has errors: %s", err)
		return a
	}
	a.hints = c.Hints()
	return a
}

// functions returns the code blocks the document declares.
func (a *analysis) functions() []string {
	var names []string
	for _, cb := range a.env.CodeBlocks() {
		if cb.Name != documentBlock {
			names = append(names, cb.Name)
		}
	}
	return names
}

func complete(a *analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, lowerPrefix) {
			return
		}
		labelCopy := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &labelCopy,
		})
	}

	for _, kw := range compiler.Keywords() {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}
	for _, name := range a.env.NativeNames() {
		n, _ := a.env.Native(name)
		add(name, nativeSignature(n), protocol.CompletionItemKindFunction)
	}
	for _, name := range a.env.ConstantNames() {
		add(name, "constant", protocol.CompletionItemKindConstant)
	}
	for _, name := range a.functions() {
		cb, _ := a.env.CodeBlock(name)
		add(name, fmt.Sprintf("%s(%s)", name, strings.Join(cb.Params, ", ")), protocol.CompletionItemKindFunction)
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func nativeSignature(n *vm.Native) string {
	if n.Arity == vm.Variadic {
		return fmt.Sprintf("%s(...)", n.Name)
	}
	args := make([]string, n.Arity)
	for i := range args {
		args[i] = fmt.Sprintf("arg%d", i+1)
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
}

func markdown(text string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

func hover(a *analysis, word string) *protocol.Hover {
	word = strings.ToLower(word)

	for _, kw := range compiler.Keywords() {
		if kw == word {
			return markdown(fmt.Sprintf("**%s**\n\nkeyword", word))
		}
	}

	if n, ok := a.env.Native(word); ok {
		var arity string
		switch n.Arity {
		case vm.Variadic:
			arity = "any number of arguments"
		case 1:
			arity = "1 argument"
		default:
			arity = fmt.Sprintf("%d arguments", n.Arity)
		}
		return markdown(fmt.Sprintf("**%s**\n\nnative function, %s", nativeSignature(n), arity))
	}

	if v, ok := a.env.Constant(word); ok {
		return markdown(fmt.Sprintf("**%s** = `%s`\n\nconstant (%s)", word, v, v.Kind()))
	}

	if cb, ok := a.env.CodeBlock(word); ok && cb.Name != documentBlock {
		var b strings.Builder
		fmt.Fprintf(&b, "**%s(%s)**\n\n", cb.Name, strings.Join(cb.Params, ", "))
		fmt.Fprintf(&b, "function, %d instructions", len(cb.Code))
		return markdown(b.String())
	}

	return nil
}

// identifierRanges returns the ranges of every identifier token spelled
// word, in source order. Record keys after '.' are not identifiers.
func identifierRanges(text, word string) []protocol.Range {
	word = strings.ToLower(word)
	var ranges []protocol.Range
	lex := compiler.NewLexer(text, nil)
	prev := compiler.TokenEOF
	for {
		t := lex.NextToken()
		if t.Type == compiler.TokenEOF || t.Type == compiler.TokenError {
			return ranges
		}
		if t.Type == compiler.TokenUnknown && t.Literal == word && prev != compiler.TokenDot {
			ranges = append(ranges, tokenRange(t.Line, t.Col, len(t.Literal)))
		}
		prev = t.Type
	}
}

// tokenRange converts a 1-based line/column to an LSP range of width runes.
func tokenRange(line, col, width int) protocol.Range {
	l := protocol.UInteger(max(line-1, 0))
	c := protocol.UInteger(max(col-1, 0))
	return protocol.Range{
		Start: protocol.Position{Line: l, Character: c},
		End:   protocol.Position{Line: l, Character: c + protocol.UInteger(width)},
	}
}

// --- Diagnostics ---

func diagnostics(a *analysis) []protocol.Diagnostic {
	source := lspName
	diags := []protocol.Diagnostic{}

	if a.err != nil {
		severity := protocol.DiagnosticSeverityError
		diags = append(diags, protocol.Diagnostic{
			Range:    tokenRange(a.err.Line, a.err.Col, 1),
			Severity: &severity,
			Source:   &source,
			Message:  a.err.Msg,
		})
	}

	for _, h := range a.hints {
		severity := protocol.DiagnosticSeverityWarning
		diags = append(diags, protocol.Diagnostic{
			Range:    tokenRange(h.Line, h.Col, len(h.Name)),
			Severity: &severity,
			Source:   &source,
			Message:  h.Message,
			Tags:     []protocol.DiagnosticTag{protocol.DiagnosticTagUnnecessary},
		})
	}
	return diags
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(env *vm.Environment) any {
		return diagnostics(analyze(env, text))
	})
	if err != nil {
		log.Errorf("diagnostics for %s: %s", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
