// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides concurrent lookup tables over the top-level
// declarations of a loaded TypeScript program.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

// Default configuration values.
const (
	// DefaultMaxSymbols is the default maximum number of symbols the index can hold.
	DefaultMaxSymbols = 1_000_000

	// searchCheckInterval is how often Search checks for context cancellation.
	searchCheckInterval = 1000
)

var (
	// ErrInvalidSymbol is returned for nil symbols or symbols without a name,
	// file or declaration.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrDuplicateSymbol is returned when a symbol key is already indexed.
	ErrDuplicateSymbol = errors.New("duplicate symbol")

	// ErrMaxSymbolsExceeded is returned when the index is at capacity.
	ErrMaxSymbolsExceeded = errors.New("maximum symbols exceeded")
)

// DeclarationIndexOptions configures DeclarationIndex limits.
type DeclarationIndexOptions struct {
	// MaxSymbols is the maximum number of symbols the index can hold.
	// Default: 1,000,000
	MaxSymbols int
}

// DefaultDeclarationIndexOptions returns the default options.
func DefaultDeclarationIndexOptions() DeclarationIndexOptions {
	return DeclarationIndexOptions{
		MaxSymbols: DefaultMaxSymbols,
	}
}

// DeclarationIndexOption is a functional option for configuring DeclarationIndex.
type DeclarationIndexOption func(*DeclarationIndexOptions)

// WithMaxSymbols sets the maximum number of symbols the index can hold.
func WithMaxSymbols(max int) DeclarationIndexOption {
	return func(o *DeclarationIndexOptions) {
		o.MaxSymbols = max
	}
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	// TotalSymbols is the number of indexed symbols.
	TotalSymbols int

	// ByKind counts symbols by the kind of their primary declaration.
	ByKind map[ast.NodeKind]int

	// FileCount is the number of files with at least one symbol.
	FileCount int

	// MaxSymbols is the configured capacity.
	MaxSymbols int
}

// DeclarationIndex provides O(1) lookups of top-level symbols.
//
// Description:
//
//	A symbol is identified by its file path and name (ast.Symbol.Key), so
//	merged interface declarations within one file form one entry, and two
//	files declaring the same name form two entries that share a byName
//	bucket. The resolver uses the byName bucket to detect ambiguous global
//	names and Suggest to produce "did you mean" hints.
//
// Thread Safety:
//
//	DeclarationIndex is safe for concurrent use.
//
// Ownership:
//
//	The index stores pointers to symbols but does NOT own them.
//	Symbols MUST NOT be mutated after being added to the index.
type DeclarationIndex struct {
	mu sync.RWMutex

	byKey  map[string]*ast.Symbol
	byName map[string][]*ast.Symbol
	byFile map[string][]*ast.Symbol
	byKind map[ast.NodeKind][]*ast.Symbol

	options DeclarationIndexOptions
}

// NewDeclarationIndex creates an empty index.
//
// Example:
//
//	idx := NewDeclarationIndex()
//	idx := NewDeclarationIndex(WithMaxSymbols(100_000))
func NewDeclarationIndex(opts ...DeclarationIndexOption) *DeclarationIndex {
	options := DefaultDeclarationIndexOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &DeclarationIndex{
		byKey:   make(map[string]*ast.Symbol),
		byName:  make(map[string][]*ast.Symbol),
		byFile:  make(map[string][]*ast.Symbol),
		byKind:  make(map[ast.NodeKind][]*ast.Symbol),
		options: options,
	}
}

func validate(sym *ast.Symbol) error {
	switch {
	case sym == nil:
		return fmt.Errorf("%w: symbol is nil", ErrInvalidSymbol)
	case sym.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidSymbol)
	case sym.File == nil:
		return fmt.Errorf("%w: %s has no file", ErrInvalidSymbol, sym.Name)
	case len(sym.Decls) == 0:
		return fmt.Errorf("%w: %s has no declarations", ErrInvalidSymbol, sym.Name)
	}
	return nil
}

// Add adds a single symbol.
//
// Errors:
//
//	ErrInvalidSymbol - Symbol failed validation
//	ErrDuplicateSymbol - Symbol with same key already exists
//	ErrMaxSymbolsExceeded - Index is at capacity
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *DeclarationIndex) Add(sym *ast.Symbol) error {
	if err := validate(sym); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.byKey) >= idx.options.MaxSymbols {
		return ErrMaxSymbolsExceeded
	}
	if _, exists := idx.byKey[sym.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym.Key())
	}

	idx.addLocked(sym)
	return nil
}

// AddBatch adds all symbols or none.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *DeclarationIndex) AddBatch(symbols []*ast.Symbol) error {
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if err := validate(sym); err != nil {
			return err
		}
		if seen[sym.Key()] {
			return fmt.Errorf("%w: %s (within batch)", ErrDuplicateSymbol, sym.Key())
		}
		seen[sym.Key()] = true
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.byKey)+len(symbols) > idx.options.MaxSymbols {
		return fmt.Errorf("%w: adding %d to %d", ErrMaxSymbolsExceeded, len(symbols), len(idx.byKey))
	}
	for _, sym := range symbols {
		if _, exists := idx.byKey[sym.Key()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym.Key())
		}
	}
	for _, sym := range symbols {
		idx.addLocked(sym)
	}
	return nil
}

func (idx *DeclarationIndex) addLocked(sym *ast.Symbol) {
	kind := sym.Primary().Kind
	idx.byKey[sym.Key()] = sym
	idx.byName[sym.Name] = append(idx.byName[sym.Name], sym)
	idx.byFile[sym.File.Path] = append(idx.byFile[sym.File.Path], sym)
	idx.byKind[kind] = append(idx.byKind[kind], sym)
}

// Get retrieves the symbol declared as name in filePath.
func (idx *DeclarationIndex) Get(filePath, name string) (*ast.Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	sym, ok := idx.byKey[filePath+"#"+name]
	return sym, ok
}

// GetByName retrieves every symbol with the given name across files,
// ordered by file path.
func (idx *DeclarationIndex) GetByName(name string) []*ast.Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sortedCopy(idx.byName[name])
}

// sortedCopy copies src and orders it by key so results are deterministic.
func sortedCopy(src []*ast.Symbol) []*ast.Symbol {
	if len(src) == 0 {
		return nil
	}
	out := make([]*ast.Symbol, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Search finds symbols whose names match query.
//
// Description:
//
//	Results are sorted by relevance: exact matches first, then prefix,
//	camelCase word boundary, substring and finally fuzzy matches
//	(Levenshtein distance within ~30% of the query length).
//
// Inputs:
//
//	ctx - Context for cancellation
//	query - Search string (case-insensitive)
//	limit - Maximum number of results to return (0 = no limit)
//
// Outputs:
//
//	[]*ast.Symbol - Matching symbols sorted by relevance
//	error - Non-nil if context was cancelled
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *DeclarationIndex) Search(ctx context.Context, query string, limit int) ([]*ast.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}

	queryLower := strings.ToLower(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scoredSymbol struct {
		symbol *ast.Symbol
		score  int
	}

	var results []scoredSymbol
	count := 0
	for _, sym := range idx.byKey {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		score, _ := computeMatchScore(query, queryLower, sym.Name, strings.ToLower(sym.Name), sym.Primary().Kind)
		if score >= 0 {
			results = append(results, scoredSymbol{symbol: sym, score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score < results[j].score
		}
		return results[i].symbol.Key() < results[j].symbol.Key()
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	symbols := make([]*ast.Symbol, len(results))
	for i, r := range results {
		symbols[i] = r.symbol
	}
	return symbols, nil
}

// Suggest returns up to limit distinct names close to name, excluding
// name itself.
func (idx *DeclarationIndex) Suggest(name string, limit int) []string {
	matches, err := idx.Search(context.Background(), name, 0)
	if err != nil {
		return nil
	}
	seen := map[string]bool{name: true}
	var out []string
	for _, sym := range matches {
		if seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		out = append(out, sym.Name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// computeMatchScore calculates a composite match score.
//
//	Score = base_score * 10000 +
//	        position_penalty * 100 +
//	        length_penalty * 10 +
//	        kind_penalty
//
// Lower is better; -1 means no match.
//
// Match Types (base_score):
//
//	0 = Exact match (case-insensitive)
//	1 = Prefix match
//	2 = CamelCase word boundary match
//	3 = Substring match
//	4 = Fuzzy match (Levenshtein)
func computeMatchScore(query, queryLower, name, nameLower string, kind ast.NodeKind) (int, string) {
	var baseScore int
	var matchType string
	var matchPos int

	if nameLower == queryLower {
		return 0, "exact"
	}

	if strings.HasPrefix(nameLower, queryLower) {
		baseScore = 1
		matchType = "prefix"
	} else if pos := findCamelCaseWordMatch(name, query); pos >= 0 {
		baseScore = 2
		matchType = "camelCase"
		matchPos = pos
	} else if pos := strings.Index(nameLower, queryLower); pos >= 0 {
		baseScore = 3
		matchType = "substring"
		matchPos = pos
	} else {
		threshold := max(2, len(queryLower)/3)
		if levenshteinDistance(nameLower, queryLower) > threshold {
			return -1, "no_match"
		}
		baseScore = 4
		matchType = "fuzzy"
	}

	positionPenalty := 0
	if len(name) > 0 && matchPos > 0 {
		positionPenalty = min(99, (matchPos*100)/len(name))
	}
	lengthPenalty := min(99, abs(len(name)-len(query)))

	score := baseScore*10000 +
		positionPenalty*100 +
		lengthPenalty*10 +
		getKindPenalty(kind)

	return score, matchType
}

// findCamelCaseWordMatch finds query at a camelCase/PascalCase word
// boundary of name. Returns the position or -1.
func findCamelCaseWordMatch(name, query string) int {
	if len(query) == 0 || len(name) == 0 {
		return -1
	}
	queryLower := strings.ToLower(query)

	for i := 0; i < len(name); i++ {
		isWordBoundary := i == 0 || (isUpper(name[i]) && !isUpper(name[i-1]))
		if !isWordBoundary || i+len(query) > len(name) {
			continue
		}
		if strings.ToLower(name[i:i+len(query)]) != queryLower {
			continue
		}
		end := i + len(query)
		if end == len(name) || isUpper(name[end]) || !isLetter(name[end]) {
			return i
		}
	}
	return -1
}

// getKindPenalty prefers model-shaped declarations over enums and variables.
func getKindPenalty(kind ast.NodeKind) int {
	switch kind {
	case ast.NodeInterface, ast.NodeClass, ast.NodeTypeAlias:
		return 0
	case ast.NodeEnum:
		return 1
	case ast.NodeVariable:
		return 2
	default:
		return 5
	}
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Stats returns statistics about the index.
func (idx *DeclarationIndex) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byKind := make(map[ast.NodeKind]int, len(idx.byKind))
	for k, v := range idx.byKind {
		byKind[k] = len(v)
	}
	return IndexStats{
		TotalSymbols: len(idx.byKey),
		ByKind:       byKind,
		FileCount:    len(idx.byFile),
		MaxSymbols:   idx.options.MaxSymbols,
	}
}
