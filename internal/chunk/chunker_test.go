package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package payments

import (
	"errors"
	"fmt"
)

// Charge debits the account and records the ledger entry.
// Returns an error if the balance is insufficient.
func Charge(amount int) error {
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	return record(amount)
}

func record(amount int) error {
	fmt.Println(amount)
	return nil
}

// Ledger tracks account balances.
type Ledger struct {
	balance int
}

// Add applies a delta to the balance.
func (l *Ledger) Add(delta int) {
	l.balance += delta
}
`

func chunkFile(t *testing.T, repo, path, content string) []*Chunk {
	t.Helper()
	c := NewCodeChunker()
	t.Cleanup(c.Close)

	chunks, err := c.Chunk(context.Background(), &FileInput{
		Repository: repo,
		Path:       path,
		Content:    []byte(content),
	})
	require.NoError(t, err)
	return chunks
}

func findChunk(chunks []*Chunk, name string) *Chunk {
	for _, ch := range chunks {
		if ch.FunctionName == name {
			return ch
		}
	}
	return nil
}

func TestChunkGoFile(t *testing.T) {
	chunks := chunkFile(t, "payments", "ledger.go", goSample)
	require.NotEmpty(t, chunks)

	charge := findChunk(chunks, "Charge")
	require.NotNil(t, charge)
	assert.Equal(t, "go", charge.Language)
	assert.Equal(t, "func Charge(amount int) error", charge.Signature)
	assert.Contains(t, charge.Docstring, "debits the account")
	assert.Contains(t, charge.Imports, "errors")
	assert.Contains(t, charge.Imports, "fmt")
	assert.Contains(t, charge.CalledFunctions, "record")
	assert.Contains(t, charge.CalledFunctions, "New")
	assert.Positive(t, charge.StartLine)
	assert.Greater(t, charge.EndLine, charge.StartLine)

	add := findChunk(chunks, "Add")
	require.NotNil(t, add)
	assert.Equal(t, "Ledger", add.ClassName)

	ledger := findChunk(chunks, "Ledger")
	require.NotNil(t, ledger)
	assert.Contains(t, ledger.Docstring, "tracks account balances")
}

func TestChunkPythonClassMethods(t *testing.T) {
	src := `import os
from typing import Optional

class Wallet:
    """Holds a balance."""

    def deposit(self, amount):
        """Add funds."""
        self.balance += amount

    def withdraw(self, amount):
        self.check(amount)
        self.balance -= amount

def standalone():
    return os.getpid()
`
	chunks := chunkFile(t, "bank", "wallet.py", src)

	wallet := findChunk(chunks, "Wallet")
	require.NotNil(t, wallet)
	assert.Contains(t, wallet.Docstring, "Holds a balance")

	deposit := findChunk(chunks, "deposit")
	require.NotNil(t, deposit)
	assert.Equal(t, "Wallet", deposit.ClassName)
	assert.Contains(t, deposit.Docstring, "Add funds")

	withdraw := findChunk(chunks, "withdraw")
	require.NotNil(t, withdraw)
	assert.Contains(t, withdraw.CalledFunctions, "check")

	standalone := findChunk(chunks, "standalone")
	require.NotNil(t, standalone)
	assert.Empty(t, standalone.ClassName)
	assert.Contains(t, standalone.Imports, "os")
}

func TestChunkTypeScript(t *testing.T) {
	src := `import { fetchUser } from "./api";

export interface User {
  id: string;
}

// Greets a user by id.
function greet(id: string): string {
  const user = fetchUser(id);
  return "hello " + user.name;
}
`
	chunks := chunkFile(t, "web", "greet.ts", src)

	greet := findChunk(chunks, "greet")
	require.NotNil(t, greet)
	assert.Equal(t, "typescript", greet.Language)
	assert.Contains(t, greet.Docstring, "Greets a user")
	assert.Contains(t, greet.CalledFunctions, "fetchUser")

	user := findChunk(chunks, "User")
	require.NotNil(t, user)
}

func TestUnsupportedLanguageFallsBack(t *testing.T) {
	chunks := chunkFile(t, "infra", "deploy.rb", "def deploy\n  puts 'hi'\nend\n")

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Empty(t, chunks[0].FunctionName)
	assert.Contains(t, chunks[0].Content, "def deploy")
}

func TestFallbackTruncatesLargeFiles(t *testing.T) {
	big := strings.Repeat("x", MaxFallbackContentBytes+100)
	chunks := chunkFile(t, "infra", "blob.txt", big)

	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Content, MaxFallbackContentBytes)
}

func TestEmptyFileYieldsNoChunks(t *testing.T) {
	chunks := chunkFile(t, "infra", "empty.go", "")
	assert.Empty(t, chunks)
}

func TestChunkIDStable(t *testing.T) {
	a := ChunkID("repo", "a/b.go", 10)
	b := ChunkID("repo", "a/b.go", 10)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	assert.NotEqual(t, a, ChunkID("repo", "a/b.go", 11))
	assert.NotEqual(t, a, ChunkID("other", "a/b.go", 10))
}

func TestSupportedExtensions(t *testing.T) {
	c := NewCodeChunker()
	t.Cleanup(c.Close)

	exts := c.SupportedExtensions()
	for _, want := range []string{".go", ".py", ".js", ".ts", ".tsx"} {
		assert.Contains(t, exts, want)
	}
}
