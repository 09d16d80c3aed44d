package kiosk

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/vansh1056/ScanAndPay/internal/camera"
	"github.com/vansh1056/ScanAndPay/internal/document"
	"github.com/vansh1056/ScanAndPay/internal/history"
	"github.com/vansh1056/ScanAndPay/internal/payment"
	"github.com/vansh1056/ScanAndPay/internal/printer"
	"github.com/vansh1056/ScanAndPay/internal/wizard"
)

// buildPDF writes a minimal PDF with the given number of blank pages
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		tempDir     string
		db          *history.BoltDB
		storage     *document.LocalStorage
		printerSrv  *ghttp.Server
		decoder     *mockDecoder
		store       *wizard.Store
		ghttpServer *ghttp.Server
		received    [][]byte
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = history.NewBoltDB(filepath.Join(tempDir, "jobs.db"))
		Expect(err).NotTo(HaveOccurred())

		storage, err = document.NewLocalStorage(filepath.Join(tempDir, "spool"))
		Expect(err).NotTo(HaveOccurred())

		received = nil
		printerSrv = ghttp.NewServer()
		record := func(w http.ResponseWriter, r *http.Request) {
			f, _, err := r.FormFile("file")
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			data, err := io.ReadAll(f)
			Expect(err).NotTo(HaveOccurred())
			received = append(received, data)
		}
		printerSrv.AppendHandlers(
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/print"),
				ghttp.RespondWith(http.StatusInternalServerError, "jammed"),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/print"),
				record,
				ghttp.RespondWith(http.StatusOK, "queued"),
			),
		)

		decoder = &mockDecoder{}
		client := printer.NewClient(printer.Config{Timeout: 5 * time.Second})
		store = wizard.NewStore(time.Minute, func(id string) *wizard.Session {
			return wizard.NewSession(id, wizard.Config{
				Flow:  wizard.FlowUploadFirst,
				Payee: payment.Payee{VPA: "kiosk@okbank", Name: "Print Kiosk"},
			}, wizard.Deps{
				Camera:    camera.NewAdapter(&mockProvider{}),
				Decoder:   decoder,
				Staging:   document.NewStaging(storage, document.FitzCounter{}, document.DefaultPricePerPage),
				Submitter: client,
				Recorder:  db,
			})
		})

		server := NewServer(store, db, Config{})
		ghttpServer = ghttp.NewServer()
		routeAll(ghttpServer, server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
		printerSrv.Close()
		store.Close()
		db.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		GinkgoHelper()
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	snapshot := func(id string) wizard.Snapshot {
		GinkgoHelper()
		var snap wizard.Snapshot
		decodeBody(do("GET", "/api/sessions/"+id, nil, ""), &snap)
		return snap
	}

	It("stages, connects by scan, submits and records the job", func() {
		var snap wizard.Snapshot
		resp := do("POST", "/api/sessions", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		decodeBody(resp, &snap)
		id := snap.ID

		By("staging two PDFs")
		for _, doc := range []struct {
			name  string
			pages int
		}{{"report.pdf", 3}, {"slides.pdf", 2}} {
			body, ct := uploadBody(doc.name, "", buildPDF(doc.pages))
			resp := do("POST", "/api/sessions/"+id+"/documents", body, ct)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		}
		snap = snapshot(id)
		Expect(snap.Step).To(Equal(wizard.StepConnect))
		Expect(snap.TotalPages).To(Equal(5))
		Expect(snap.TotalPrice).To(Equal(10))
		Expect(snap.PaymentLink).To(ContainSubstring("am=10.00"))

		By("scanning the printer QR code")
		decoder.text = "  " + printerSrv.Addr() + "\n"
		resp = do("POST", "/api/sessions/"+id+"/scan", nil, "")
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		Eventually(func() wizard.Step { return snapshot(id).Step }).Should(Equal(wizard.StepPayment))
		snap = snapshot(id)
		Expect(snap.Address).To(Equal(printerSrv.Addr()))
		Expect(snap.AddressSource).To(Equal(wizard.SourceScanned))

		By("submitting to the printer")
		resp = do("POST", "/api/sessions/"+id+"/submit", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var sub wizard.Submission
		decodeBody(resp, &sub)
		Expect(sub.Outcomes).To(HaveLen(2))
		Expect(sub.Outcomes[0].OK).To(BeFalse())
		Expect(sub.Outcomes[0].StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(sub.Outcomes[1].OK).To(BeTrue())
		Expect(printerSrv.ReceivedRequests()).To(HaveLen(2))
		Expect(received).To(Equal([][]byte{buildPDF(2)}))

		By("reading the job history")
		var jobs []*history.Job
		decodeBody(do("GET", "/api/jobs", nil, ""), &jobs)
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].ID).To(Equal(sub.JobID))
		Expect(jobs[0].Succeeded).To(Equal(1))
		Expect(jobs[0].Failed).To(Equal(1))
		Expect(jobs[0].TotalPages).To(Equal(5))
		Expect(jobs[0].Documents[0].Pages).To(Equal(3))

		By("deleting the session")
		resp = do("DELETE", "/api/sessions/"+id, nil, "")
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		entries, err := filepath.Glob(filepath.Join(tempDir, "spool", "*"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
