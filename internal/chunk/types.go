// Package chunk splits source files into retrievable units using
// tree-sitter ASTs. One chunk per top-level function, method, class, or
// type; files that cannot be parsed become a single whole-file chunk.
package chunk

import "context"

const (
	// MaxFallbackContentBytes truncates whole-file fallback chunks so a
	// single unparseable file cannot blow up an index batch.
	MaxFallbackContentBytes = 32 * 1024

	// MaxDocstringBytes truncates very long doc comments.
	MaxDocstringBytes = 2 * 1024
)

// Chunk is one retrievable unit of a source file. Field shape follows the
// search index document.
type Chunk struct {
	ID              string
	Repository      string
	FilePath        string
	Language        string
	StartLine       int // 1-indexed
	EndLine         int // inclusive
	FunctionName    string
	ClassName       string
	Content         string
	Signature       string
	Docstring       string
	Imports         []string
	CalledFunctions []string
}

// FileInput is one file handed to the chunker.
type FileInput struct {
	Repository string
	Path       string
	Content    []byte
	Language   string // inferred from extension when empty
}

// Chunker splits files into chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
	SupportedExtensions() []string
}

// LanguageConfig maps a grammar's node types onto chunk roles.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string
	TypeDefTypes  []string
	ImportTypes   []string
	CallTypes     []string

	// CommentPrefix is the single-line comment marker used when scanning
	// for doc comments above a declaration.
	CommentPrefix string
}
