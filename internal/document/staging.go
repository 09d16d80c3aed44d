package document

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator generates unique payload keys
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Staging holds the ordered list of documents staged in one session
type Staging struct {
	storage      Storage
	counter      PageCounter
	idGenerator  IDGenerator
	pricePerPage int

	mu   sync.Mutex
	docs []StagedDocument
}

// NewStaging creates an empty staging list
func NewStaging(storage Storage, counter PageCounter, pricePerPage int) *Staging {
	return NewStagingWithDeps(storage, counter, pricePerPage, uuidGenerator{})
}

// NewStagingWithDeps creates an empty staging list with a custom ID generator for testing
func NewStagingWithDeps(storage Storage, counter PageCounter, pricePerPage int, idGen IDGenerator) *Staging {
	if pricePerPage < 0 {
		pricePerPage = 0
	}
	return &Staging{
		storage:      storage,
		counter:      counter,
		idGenerator:  idGen,
		pricePerPage: pricePerPage,
	}
}

// Stage counts the pages of a file, stores it and appends it to the list.
// On any failure the list is unchanged.
func (s *Staging) Stage(filename, declaredType string, data []byte) (StagedDocument, error) {
	contentType := ResolveType(filename, declaredType, data)
	if !s.counter.Accepts(contentType) {
		return StagedDocument{}, fmt.Errorf("%s (%s): %w", filename, contentType, ErrUnsupportedType)
	}

	pages, err := s.counter.CountPages(data, contentType)
	if err != nil {
		slog.Warn("Failed to count pages",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return StagedDocument{}, fmt.Errorf("%s: %w: %v", filename, ErrInvalidDocument, err)
	}
	if pages <= 0 {
		return StagedDocument{}, fmt.Errorf("%s: %w: no pages", filename, ErrInvalidDocument)
	}

	key := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	handle, err := s.storage.Save(key, data)
	if err != nil {
		return StagedDocument{}, fmt.Errorf("saving payload: %w", err)
	}

	doc := StagedDocument{
		Name:        filename,
		Pages:       pages,
		ContentType: contentType,
		Size:        len(data),
		Handle:      handle,
	}

	s.mu.Lock()
	next := make([]StagedDocument, len(s.docs), len(s.docs)+1)
	copy(next, s.docs)
	s.docs = append(next, doc)
	s.mu.Unlock()

	return doc, nil
}

// Remove drops the document at index. Out of range indexes are ignored.
func (s *Staging) Remove(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.docs) {
		s.mu.Unlock()
		return
	}
	removed := s.docs[index]
	next := make([]StagedDocument, 0, len(s.docs)-1)
	next = append(next, s.docs[:index]...)
	s.docs = append(next, s.docs[index+1:]...)
	s.mu.Unlock()

	s.deletePayload(removed)
}

// Documents returns a snapshot of the staged list
func (s *Staging) Documents() []StagedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]StagedDocument, len(s.docs))
	copy(docs, s.docs)
	return docs
}

// Len returns the number of staged documents
func (s *Staging) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// TotalPages is the sum of page counts over the current list
func (s *Staging) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPages(s.docs)
}

// TotalPrice is TotalPages times the price per page
func (s *Staging) TotalPrice() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPages(s.docs) * s.pricePerPage
}

// PricePerPage returns the configured page price
func (s *Staging) PricePerPage() int {
	return s.pricePerPage
}

// Payload loads the raw bytes of a staged document
func (s *Staging) Payload(doc StagedDocument) ([]byte, error) {
	data, err := s.storage.Get(doc.Handle)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", doc.Name, err)
	}
	return data, nil
}

// Reset empties the list and deletes every payload
func (s *Staging) Reset() {
	s.mu.Lock()
	docs := s.docs
	s.docs = nil
	s.mu.Unlock()

	for _, doc := range docs {
		s.deletePayload(doc)
	}
}

func (s *Staging) deletePayload(doc StagedDocument) {
	if err := s.storage.Delete(doc.Handle); err != nil {
		slog.Warn("Failed to delete payload", "handle", doc.Handle, "error", err)
	}
}

func totalPages(docs []StagedDocument) int {
	total := 0
	for _, d := range docs {
		total += d.Pages
	}
	return total
}
