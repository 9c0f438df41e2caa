package book

import (
	"sort"
	"sync"
)

// Set holds one Book per instrument ticker.
type Set struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{books: make(map[string]*Book)}
}

// Get returns the book for ticker if it exists.
func (s *Set) Get(ticker string) (*Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[ticker]
	return b, ok
}

// GetOrCreate returns the book for ticker, creating it on first use.
func (s *Set) GetOrCreate(ticker string) *Book {
	s.mu.RLock()
	b, ok := s.books[ticker]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[ticker]; ok {
		return b
	}
	b = New(ticker)
	s.books[ticker] = b
	return b
}

// Drop removes the book for ticker.
func (s *Set) Drop(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, ticker)
}

// Tickers returns the tickers with a book, sorted.
func (s *Set) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.books))
	for t := range s.books {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
