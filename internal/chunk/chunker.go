package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// maxCalledFunctions caps the called-function list per chunk.
const maxCalledFunctions = 32

// CodeChunker implements AST-aware chunking using tree-sitter.
// Not safe for concurrent use; each indexing worker owns one.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

var _ Chunker = (*CodeChunker)(nil)

// NewCodeChunker creates a chunker over the default language registry.
func NewCodeChunker() *CodeChunker {
	return &CodeChunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns extensions with a registered grammar.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into one chunk per top-level symbol. Unsupported
// languages, parse failures, and files without symbols collapse to a
// single whole-file chunk.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	language := file.Language
	if language == "" {
		language, _ = c.registry.LanguageForExtension(filepath.Ext(file.Path))
	}

	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*Chunk{c.fallbackChunk(file, language)}, nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, language)
	if err != nil {
		return []*Chunk{c.fallbackChunk(file, language)}, nil
	}

	imports := c.extractImports(tree, config)
	chunks := c.extractSymbolChunks(tree, config, file, language, imports)
	if len(chunks) == 0 {
		return []*Chunk{c.fallbackChunk(file, language)}, nil
	}
	return chunks, nil
}

// extractImports collects the file's import statements, one entry per
// import path or aliased name.
func (c *CodeChunker) extractImports(tree *Tree, config *LanguageConfig) []string {
	var imports []string
	for _, node := range tree.Root.Children {
		if !containsType(config.ImportTypes, node.Type) {
			continue
		}
		node.Walk(func(n *Node) bool {
			switch n.Type {
			case "interpreted_string_literal", "string", "string_literal":
				path := strings.Trim(n.Content(tree.Source), `"'`)
				if path != "" {
					imports = append(imports, path)
				}
				return false
			case "dotted_name", "aliased_import":
				imports = append(imports, n.Content(tree.Source))
				return false
			}
			return true
		})
	}
	return dedupeStrings(imports)
}

// extractSymbolChunks walks top-level declarations and emits one chunk
// per function, method, class, or type definition.
func (c *CodeChunker) extractSymbolChunks(tree *Tree, config *LanguageConfig, file *FileInput, language string, imports []string) []*Chunk {
	var chunks []*Chunk

	emit := func(n *Node, name, className string) {
		if name == "" {
			return
		}
		startLine := int(n.StartPoint.Row) + 1
		content := n.Content(tree.Source)
		chunks = append(chunks, &Chunk{
			ID:              ChunkID(file.Repository, file.Path, startLine),
			Repository:      file.Repository,
			FilePath:        file.Path,
			Language:        language,
			StartLine:       startLine,
			EndLine:         int(n.EndPoint.Row) + 1,
			FunctionName:    name,
			ClassName:       className,
			Content:         content,
			Signature:       firstLine(content),
			Docstring:       c.extractDocstring(n, tree.Source, config, language),
			Imports:         imports,
			CalledFunctions: c.extractCalls(n, tree.Source, config),
		})
	}

	tree.Root.Walk(func(n *Node) bool {
		switch {
		case containsType(config.FunctionTypes, n.Type):
			emit(n, c.extractName(n, tree.Source), "")
			return false
		case containsType(config.MethodTypes, n.Type):
			emit(n, c.extractName(n, tree.Source), c.receiverType(n, tree.Source))
			return false
		case containsType(config.ClassTypes, n.Type):
			className := c.extractName(n, tree.Source)
			emit(n, className, "")
			// Methods inside the class body become their own chunks.
			n.Walk(func(inner *Node) bool {
				if inner == n {
					return true
				}
				if containsType(config.FunctionTypes, inner.Type) ||
					containsType(config.MethodTypes, inner.Type) {
					emit(inner, c.extractName(inner, tree.Source), className)
					return false
				}
				return true
			})
			return false
		case containsType(config.TypeDefTypes, n.Type):
			emit(n, c.extractName(n, tree.Source), "")
			return false
		}
		return true
	})

	return chunks
}

// extractName finds the declared identifier of a symbol node.
func (c *CodeChunker) extractName(n *Node, source []byte) string {
	for _, t := range []string{"identifier", "field_identifier", "property_identifier", "type_identifier"} {
		if child := n.FindChildByType(t); child != nil {
			return child.Content(source)
		}
	}
	// Go type_declaration wraps the name in a type_spec.
	if spec := n.FindChildByType("type_spec"); spec != nil {
		if id := spec.FindChildByType("type_identifier"); id != nil {
			return id.Content(source)
		}
	}
	return ""
}

// receiverType extracts the receiver type of a Go method declaration.
// Returns "" for languages without explicit receivers.
func (c *CodeChunker) receiverType(n *Node, source []byte) string {
	recv := n.FindChildByType("parameter_list")
	if recv == nil {
		return ""
	}
	var typeName string
	recv.Walk(func(inner *Node) bool {
		if inner.Type == "type_identifier" && typeName == "" {
			typeName = inner.Content(source)
			return false
		}
		return true
	})
	return typeName
}

// extractDocstring returns the comment block immediately above the node,
// or for Python the leading string literal of the body.
func (c *CodeChunker) extractDocstring(n *Node, source []byte, config *LanguageConfig, language string) string {
	if language == "python" {
		if doc := pythonBodyDocstring(n, source); doc != "" {
			return truncateBytes(doc, MaxDocstringBytes)
		}
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	var commentLines []string
	pos := lineStart - 1
	for pos > 0 {
		prevLineEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevLineStart := pos
		if pos > 0 {
			prevLineStart++
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))
		if strings.HasPrefix(prevLine, config.CommentPrefix) {
			text := strings.TrimSpace(strings.TrimPrefix(prevLine, config.CommentPrefix))
			commentLines = append([]string{text}, commentLines...)
			continue
		}
		break
	}

	return truncateBytes(strings.TrimSpace(strings.Join(commentLines, "\n")), MaxDocstringBytes)
}

// pythonBodyDocstring returns the leading string literal of a function or
// class body, if present.
func pythonBodyDocstring(n *Node, source []byte) string {
	body := n.FindChildByType("block")
	if body == nil || len(body.Children) == 0 {
		return ""
	}
	first := body.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	str := first.FindChildByType("string")
	if str == nil {
		return ""
	}
	return strings.Trim(str.Content(source), `"'`)
}

// extractCalls collects function names invoked inside a symbol node,
// deduped in call order.
func (c *CodeChunker) extractCalls(n *Node, source []byte, config *LanguageConfig) []string {
	var calls []string
	n.Walk(func(inner *Node) bool {
		if !containsType(config.CallTypes, inner.Type) {
			return true
		}
		if len(inner.Children) == 0 {
			return true
		}
		callee := inner.Children[0].Content(source)
		// Keep the final segment of dotted or selector calls.
		if idx := strings.LastIndexAny(callee, ".:"); idx >= 0 && idx+1 < len(callee) {
			callee = callee[idx+1:]
		}
		if callee != "" && !strings.ContainsAny(callee, " \t\n(") {
			calls = append(calls, callee)
		}
		return true
	})

	calls = dedupeStrings(calls)
	if len(calls) > maxCalledFunctions {
		calls = calls[:maxCalledFunctions]
	}
	return calls
}

// fallbackChunk wraps the whole file as a single chunk with truncated
// content.
func (c *CodeChunker) fallbackChunk(file *FileInput, language string) *Chunk {
	content := truncateBytes(string(file.Content), MaxFallbackContentBytes)
	// A trailing newline terminates the last line rather than opening
	// a new one.
	endLine := strings.Count(strings.TrimSuffix(content, "\n"), "\n") + 1
	return &Chunk{
		ID:         ChunkID(file.Repository, file.Path, 1),
		Repository: file.Repository,
		FilePath:   file.Path,
		Language:   language,
		StartLine:  1,
		EndLine:    endLine,
		Content:    content,
	}
}

// ChunkID derives the stable chunk identity from repository, path, and
// start line. Re-indexing an unchanged file yields identical IDs, so
// uploads overwrite rather than duplicate.
func ChunkID(repository, path string, startLine int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", repository, path, startLine))
	return hex.EncodeToString(sum[:])[:16]
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimRight(s[:idx], " \t{:")
	}
	return s
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func containsType(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
