package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort      = 5000
	DefaultPath      = "/print"
	DefaultFieldName = "file"
	DefaultTimeout   = 30 * time.Second
)

var (
	// ErrPreconditionUnmet is returned when there is nothing to send or nowhere to send it
	ErrPreconditionUnmet = errors.New("submission precondition unmet")
	// ErrTransferFailed matches every per-document transfer failure
	ErrTransferFailed = errors.New("transfer failed")
)

// TransferError describes why one document was not accepted by the printer
type TransferError struct {
	Name       string
	StatusCode int   // set when the printer answered with a non-2xx status
	Err        error // set for network or payload failures
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sending %s: printer returned status %d", e.Name, e.StatusCode)
	}
	return fmt.Sprintf("sending %s: %v", e.Name, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

// Document is one file to send
type Document struct {
	Name string
	// Load returns the raw bytes; it is called right before the transfer
	Load func() ([]byte, error)
}

// Outcome is the result of sending one document
type Outcome struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

// Config configures the printer endpoint
type Config struct {
	Port      int
	Path      string
	FieldName string
	Timeout   time.Duration
}

// Client sends documents to a printer's HTTP print endpoint
type Client struct {
	port      int
	path      string
	fieldName string
	client    *http.Client
}

// NewClient creates a printer client, filling unset config with defaults
func NewClient(cfg Config) *Client {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		port:      cfg.Port,
		path:      cfg.Path,
		fieldName: cfg.FieldName,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// EndpointURL builds the print URL for an address. An address that already
// carries a port keeps it.
func (c *Client) EndpointURL(address string) string {
	host := strings.TrimSpace(address)
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(c.port))
	}
	u := url.URL{Scheme: "http", Host: host, Path: c.path}
	return u.String()
}

// Submit sends each document in order, one at a time. A failed transfer does
// not stop the batch. The returned outcomes line up with docs.
func (c *Client) Submit(ctx context.Context, docs []Document, address string) ([]Outcome, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents staged: %w", ErrPreconditionUnmet)
	}
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("no printer address: %w", ErrPreconditionUnmet)
	}

	endpoint := c.EndpointURL(address)
	outcomes := make([]Outcome, 0, len(docs))
	for i, doc := range docs {
		outcome := Outcome{Index: i, Name: doc.Name}
		status, err := c.send(ctx, endpoint, doc)
		outcome.StatusCode = status
		if err != nil {
			slog.Error("Failed to send document", "name", doc.Name, "endpoint", endpoint, "error", err)
			outcome.Err = err
			outcome.Error = err.Error()
		} else {
			slog.Info("Document sent", "name", doc.Name, "endpoint", endpoint, "status", status)
			outcome.OK = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (c *Client) send(ctx context.Context, endpoint string, doc Document) (int, error) {
	data, err := doc.Load()
	if err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("loading payload: %w", err)}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(c.fieldName, doc.Name)
	if err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("creating form file: %w", err)}
	}
	if _, err := part.Write(data); err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("writing form file: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("closing form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &TransferError{Name: doc.Name, Err: fmt.Errorf("calling printer: %w", err)}
	}
	defer resp.Body.Close()
	// drain so the connection can be reused for the next document
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)); err != nil {
		slog.Debug("Failed to drain printer response", "document", doc.Name, "error", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &TransferError{Name: doc.Name, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}
