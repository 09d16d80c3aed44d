package document

import "errors"

// StagedDocument is a file accepted into a wizard session, pending submission
type StagedDocument struct {
	Name        string `json:"name"`
	Pages       int    `json:"pages"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Handle      string `json:"-"` // storage key of the raw bytes
}

var (
	// ErrUnsupportedType is returned for files that are not an accepted document type
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrInvalidDocument is returned when a file cannot be parsed as its type
	ErrInvalidDocument = errors.New("invalid document")
)

// DefaultPricePerPage is the price of one printed page in whole rupees
const DefaultPricePerPage = 2
