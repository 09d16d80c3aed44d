package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/vansh1056/ScanAndPay/internal/camera"
	"github.com/vansh1056/ScanAndPay/internal/document"
	"github.com/vansh1056/ScanAndPay/internal/history"
	"github.com/vansh1056/ScanAndPay/internal/kiosk"
	"github.com/vansh1056/ScanAndPay/internal/payment"
	"github.com/vansh1056/ScanAndPay/internal/printer"
	"github.com/vansh1056/ScanAndPay/internal/scanning"
	"github.com/vansh1056/ScanAndPay/internal/wizard"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("scanpay")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "scanpay.db", "Job history database file path")
		spoolPath       = fs.StringLong("spool", "./spool", "Directory for staged documents")
		pricePerPage    = fs.IntLong("price-per-page", document.DefaultPricePerPage, "Price of one printed page")
		acceptImages    = fs.BoolLong("accept-images", "Accept JPEG, PNG, GIF and HEIC images as single-page documents")
		flowName        = fs.StringLong("flow", string(wizard.FlowUploadFirst), "Step order: 'upload-first' or 'connect-first'")
		resetDelay      = fs.DurationLong("reset-delay", 0, "Reset a session this long after it submits (0 disables)")
		sessionTTL      = fs.DurationLong("session-ttl", wizard.DefaultSessionTTL, "Close sessions idle for this long")
		cameraConfig    = fs.StringLong("camera-config", "", "YAML file listing camera devices (default: discover /dev/video*)")
		tryHarder       = fs.BoolLong("qr-try-harder", "Spend more time per frame looking for QR codes")
		printerPort     = fs.IntLong("printer-port", printer.DefaultPort, "Printer port used when the address has none")
		printerPath     = fs.StringLong("printer-path", printer.DefaultPath, "Printer upload path")
		printerField    = fs.StringLong("printer-field", printer.DefaultFieldName, "Multipart field carrying the document")
		transferTimeout = fs.DurationLong("transfer-timeout", printer.DefaultTimeout, "Timeout for each document transfer")
		upiVPA          = fs.StringLong("upi-vpa", "", "UPI payee address for payment links (optional)")
		upiName         = fs.StringLong("upi-name", "", "UPI payee display name")
		upiNote         = fs.StringLong("upi-note", "Print job", "UPI transaction note")
		rateLimit       = fs.Float64Long("rate-limit", 0, "Requests per second allowed per client (0 disables)")
		rateBurst       = fs.IntLong("rate-burst", 20, "Request burst allowed per client")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCANPAY"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	flow, err := wizard.ParseFlow(*flowName)
	if err != nil {
		slog.Error("Invalid flow", "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := history.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *spoolPath)
	storage, err := document.NewLocalStorage(*spoolPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize camera
	var devices *camera.DeviceConfig
	if *cameraConfig != "" {
		devices, err = camera.LoadDevices(*cameraConfig)
		if err != nil {
			slog.Error("Failed to load camera config", "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded camera config", "devices", len(devices.Devices))
	}
	provider := camera.NewV4L2Provider(devices)
	decoder := scanning.NewQRDecoder(*tryHarder)
	counter := document.FitzCounter{AcceptImages: *acceptImages}

	client := printer.NewClient(printer.Config{
		Port:      *printerPort,
		Path:      *printerPath,
		FieldName: *printerField,
		Timeout:   *transferTimeout,
	})

	sessionConfig := wizard.Config{
		Flow:       flow,
		ResetDelay: *resetDelay,
		Payee: payment.Payee{
			VPA:  *upiVPA,
			Name: *upiName,
			Note: *upiNote,
		},
	}
	store := wizard.NewStore(*sessionTTL, func(id string) *wizard.Session {
		return wizard.NewSession(id, sessionConfig, wizard.Deps{
			Camera:    camera.NewAdapter(provider),
			Decoder:   decoder,
			Staging:   document.NewStaging(storage, counter, *pricePerPage),
			Submitter: client,
			Recorder:  db,
		})
	})
	defer store.Close()

	// Initialize server
	server := kiosk.NewServer(store, db, kiosk.Config{
		BasicAuth: kiosk.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		RateLimit: *rateLimit,
		RateBurst: *rateBurst,
	})

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "flow", flow, "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if !sessionConfig.Payee.Enabled() {
		slog.Info("No UPI payee configured, payment links disabled")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}
