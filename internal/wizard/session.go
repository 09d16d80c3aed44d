package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vansh1056/ScanAndPay/internal/camera"
	"github.com/vansh1056/ScanAndPay/internal/document"
	"github.com/vansh1056/ScanAndPay/internal/history"
	"github.com/vansh1056/ScanAndPay/internal/payment"
	"github.com/vansh1056/ScanAndPay/internal/printer"
	"github.com/vansh1056/ScanAndPay/internal/scanning"
)

var (
	// ErrEmptyAddress is returned when a printer address is blank after trimming
	ErrEmptyAddress = errors.New("printer address is empty")
	// ErrWrongStep is returned for operations the current step does not allow
	ErrWrongStep = errors.New("operation not allowed in current step")
	// ErrSubmissionInProgress is returned while documents are being sent
	ErrSubmissionInProgress = errors.New("submission in progress")
	// ErrSessionClosed is returned once a session has been closed
	ErrSessionClosed = errors.New("session closed")
)

// AddressSource records how the printer address was obtained
type AddressSource string

const (
	SourceScanned AddressSource = "scanned"
	SourceManual  AddressSource = "manual"
)

// Submitter sends staged documents to a printer
type Submitter interface {
	Submit(ctx context.Context, docs []printer.Document, address string) ([]printer.Outcome, error)
}

// Recorder persists submission history
type Recorder interface {
	SaveJob(job *history.Job) error
}

// IDGenerator generates unique IDs for sessions and jobs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ScanState is the camera scan state of a session
type ScanState struct {
	Active    bool   `json:"active"`
	LastError string `json:"last_error,omitempty"`
}

// Submission summarises the last submission of a session
type Submission struct {
	JobID     string            `json:"job_id"`
	Address   string            `json:"address"`
	Outcomes  []printer.Outcome `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	ID             string                    `json:"id"`
	Flow           Flow                      `json:"flow"`
	Steps          []Step                    `json:"steps"`
	Step           Step                      `json:"step"`
	Address        string                    `json:"address,omitempty"`
	AddressSource  AddressSource             `json:"address_source,omitempty"`
	Documents      []document.StagedDocument `json:"documents"`
	TotalPages     int                       `json:"total_pages"`
	TotalPrice     int                       `json:"total_price"`
	PricePerPage   int                       `json:"price_per_page"`
	PaymentLink    string                    `json:"payment_link,omitempty"`
	Scan           ScanState                 `json:"scan"`
	Submitting     bool                      `json:"submitting"`
	LastSubmission *Submission               `json:"last_submission,omitempty"`
}

// Config holds the per-session settings
type Config struct {
	Flow Flow
	// ResetDelay resets the session this long after a submission completes; zero disables it
	ResetDelay time.Duration
	Payee      payment.Payee
}

// Deps are the collaborators of a session
type Deps struct {
	Camera    *camera.Adapter
	Decoder   scanning.Decoder
	Staging   *document.Staging
	Submitter Submitter
	Recorder  Recorder // optional

	IDGenerator IDGenerator // optional, defaults to uuid
	TimeSource  TimeSource  // optional, defaults to time.Now
}

// Session is one customer's walk through the wizard
type Session struct {
	id         string
	flow       Flow
	steps      []Step
	payee      payment.Payee
	resetDelay time.Duration

	camera      *camera.Adapter
	loop        *scanning.Loop
	staging     *document.Staging
	submitter   Submitter
	recorder    Recorder
	idGenerator IDGenerator
	timeSource  TimeSource

	mu             sync.Mutex
	stepIndex      int
	address        string
	addressSource  AddressSource
	scan           ScanState
	scanGen        uint64
	submitting     bool
	lastSubmission *Submission
	resetTimer     *time.Timer
	closed         bool
}

// NewSession creates a session positioned at the first step of its flow
func NewSession(id string, cfg Config, deps Deps) *Session {
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuidGenerator{}
	}
	if deps.TimeSource == nil {
		deps.TimeSource = defaultTimeSource{}
	}
	flow := cfg.Flow
	if flow == "" {
		flow = FlowUploadFirst
	}
	return &Session{
		id:          id,
		flow:        flow,
		steps:       flow.Steps(),
		payee:       cfg.Payee,
		resetDelay:  cfg.ResetDelay,
		camera:      deps.Camera,
		loop:        scanning.NewLoop(deps.Decoder),
		staging:     deps.Staging,
		submitter:   deps.Submitter,
		recorder:    deps.Recorder,
		idGenerator: deps.IDGenerator,
		timeSource:  deps.TimeSource,
	}
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

func (s *Session) currentLocked() Step {
	return s.steps[s.stepIndex]
}

// reachedLocked reports whether the flow has arrived at or passed step
func (s *Session) reachedLocked(step Step) bool {
	for i := 0; i <= s.stepIndex; i++ {
		if s.steps[i] == step {
			return true
		}
	}
	return false
}

// completeLocked advances past step if it is the current one
func (s *Session) completeLocked(step Step) {
	if s.currentLocked() != step || s.stepIndex == len(s.steps)-1 {
		return
	}
	s.stepIndex++
	slog.Info("Wizard step advanced", "session", s.id, "from", step, "to", s.currentLocked())
}

func (s *Session) checkLocked(step Step) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.currentLocked() != step {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStep, s.currentLocked(), step)
	}
	return nil
}

// StartScan acquires a camera and starts decoding frames. A decoded address
// completes the connect step. Acquisition failures leave the step unchanged
// and record a remedy in the scan state.
func (s *Session) StartScan(ctx context.Context, preferred *camera.Constraints) error {
	s.mu.Lock()
	if err := s.checkLocked(StepConnect); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.scan.Active {
		s.mu.Unlock()
		return nil
	}
	s.scanGen++
	gen := s.scanGen
	s.scan = ScanState{Active: true}
	s.mu.Unlock()

	stream, err := s.camera.Acquire(ctx, preferred)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if gen == s.scanGen {
			s.scan = ScanState{LastError: camera.Remedy(err)}
		}
		slog.Warn("Failed to start scan", "session", s.id, "error", err)
		return fmt.Errorf("starting scan: %w", err)
	}
	if gen != s.scanGen {
		s.camera.Release()
		return fmt.Errorf("starting scan: %w", camera.ErrReleased)
	}

	// the loop outlives the request that started it
	done := s.loop.Start(context.Background(), stream, func(text string) {
		s.onScanned(gen, text)
	})
	go func() {
		<-done
		s.onScanEnded(gen)
	}()
	slog.Info("Scan started", "session", s.id)
	return nil
}

// onScanEnded clears a scan whose loop stopped without a result
func (s *Session) onScanEnded(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.scanGen || !s.scan.Active || s.closed {
		return
	}
	slog.Warn("Decode loop ended without a result", "session", s.id)
	s.stopScanLocked()
	s.scan.LastError = "The camera stopped delivering frames. Start the scan again or type the address."
}

func (s *Session) onScanned(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.scanGen || !s.scan.Active || s.closed {
		return
	}
	address := strings.TrimSpace(text)
	s.stopScanLocked()
	if address == "" || s.currentLocked() != StepConnect {
		return
	}
	s.acceptAddressLocked(address, SourceScanned)
}

// StopScan stops any running scan and releases the camera
func (s *Session) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopScanLocked()
}

func (s *Session) stopScanLocked() {
	s.scanGen++
	s.scan.Active = false
	s.loop.Stop()
	s.camera.Release()
}

// SubmitAddress accepts a typed printer address
func (s *Session) SubmitAddress(raw string) error {
	address := strings.TrimSpace(raw)
	if address == "" {
		return ErrEmptyAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(StepConnect); err != nil {
		return err
	}
	s.stopScanLocked()
	s.acceptAddressLocked(address, SourceManual)
	return nil
}

func (s *Session) acceptAddressLocked(address string, source AddressSource) {
	s.address = address
	s.addressSource = source
	s.scan.LastError = ""
	slog.Info("Printer address accepted", "session", s.id, "address", address, "source", source)
	s.completeLocked(StepConnect)
}

// Stage adds a document to the session
func (s *Session) Stage(filename, contentType string, data []byte) (document.StagedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStagingLocked(); err != nil {
		return document.StagedDocument{}, err
	}

	doc, err := s.staging.Stage(filename, contentType, data)
	if err != nil {
		return document.StagedDocument{}, err
	}
	s.completeLocked(StepUpload)
	return doc, nil
}

// Remove drops the staged document at index. Out of range is a no-op.
func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkStagingLocked(); err != nil {
		return err
	}
	s.staging.Remove(index)
	return nil
}

func (s *Session) checkStagingLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.reachedLocked(StepUpload) {
		return fmt.Errorf("%w: documents cannot be staged at %s", ErrWrongStep, s.currentLocked())
	}
	if s.submitting {
		return ErrSubmissionInProgress
	}
	return nil
}

// Submit sends every staged document to the printer and records a job.
// The step does not change.
func (s *Session) Submit(ctx context.Context) (*Submission, error) {
	s.mu.Lock()
	if err := s.checkLocked(StepPayment); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	s.submitting = true
	s.stopResetTimerLocked()
	docs := s.staging.Documents()
	address := s.address
	totalPages := s.staging.TotalPages()
	totalPrice := s.staging.TotalPrice()
	s.mu.Unlock()

	outcomes, err := s.submitter.Submit(ctx, s.printerDocuments(docs), address)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return nil, fmt.Errorf("submitting documents: %w", err)
	}

	sub := &Submission{
		JobID:    s.idGenerator.Generate(),
		Address:  address,
		Outcomes: outcomes,
	}
	job := &history.Job{
		ID:         sub.JobID,
		SessionID:  s.id,
		Address:    address,
		Documents:  make([]history.JobDocument, 0, len(outcomes)),
		TotalPages: totalPages,
		TotalPrice: totalPrice,
		CreatedAt:  s.timeSource.Now(),
	}
	for _, o := range outcomes {
		if o.OK {
			sub.Succeeded++
		} else {
			sub.Failed++
		}
		jd := history.JobDocument{Name: o.Name, OK: o.OK, StatusCode: o.StatusCode, Error: o.Error}
		if o.Index >= 0 && o.Index < len(docs) {
			jd.Pages = docs[o.Index].Pages
		}
		job.Documents = append(job.Documents, jd)
	}
	job.Succeeded = sub.Succeeded
	job.Failed = sub.Failed

	if s.recorder != nil {
		if err := s.recorder.SaveJob(job); err != nil {
			slog.Error("Failed to record job", "session", s.id, "job", job.ID, "error", err)
		}
	}
	s.lastSubmission = sub
	slog.Info("Submission finished", "session", s.id, "job", job.ID, "succeeded", sub.Succeeded, "failed", sub.Failed)

	if s.resetDelay > 0 && !s.closed {
		s.resetTimer = time.AfterFunc(s.resetDelay, func() {
			if err := s.Reset(); err != nil {
				slog.Warn("Scheduled reset skipped", "session", s.id, "error", err)
			}
		})
	}
	return sub, nil
}

func (s *Session) printerDocuments(docs []document.StagedDocument) []printer.Document {
	out := make([]printer.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, printer.Document{
			Name: doc.Name,
			Load: func() ([]byte, error) {
				return s.staging.Payload(doc)
			},
		})
	}
	return out
}

// Reset stops scanning, discards staged documents and the address, and
// returns to the first step of the flow
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.submitting {
		return ErrSubmissionInProgress
	}
	s.stopResetTimerLocked()
	s.stopScanLocked()
	s.staging.Reset()
	s.address = ""
	s.addressSource = ""
	s.scan = ScanState{}
	s.lastSubmission = nil
	s.stepIndex = 0
	slog.Info("Session reset", "session", s.id)
	return nil
}

// Close releases the camera and deletes staged payloads. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopResetTimerLocked()
	s.stopScanLocked()
	s.staging.Reset()
	slog.Info("Session closed", "session", s.id)
}

func (s *Session) stopResetTimerLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:             s.id,
		Flow:           s.flow,
		Steps:          append([]Step(nil), s.steps...),
		Step:           s.currentLocked(),
		Address:        s.address,
		AddressSource:  s.addressSource,
		Documents:      s.staging.Documents(),
		TotalPages:     s.staging.TotalPages(),
		TotalPrice:     s.staging.TotalPrice(),
		PricePerPage:   s.staging.PricePerPage(),
		Scan:           s.scan,
		Submitting:     s.submitting,
		LastSubmission: s.lastSubmission,
	}
	if snap.TotalPrice > 0 && s.payee.Enabled() {
		link, err := s.payee.Link(snap.TotalPrice)
		if err != nil {
			slog.Warn("Failed to build payment link", "session", s.id, "error", err)
		} else {
			snap.PaymentLink = link
		}
	}
	return snap
}
