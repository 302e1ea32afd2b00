// Command docdash uploads documents to the OCR bucket, polls for their
// analysis results and writes the consolidated table to a CSV or XLSX file.
// Usage: docdash --label Bungasari --out results.csv invoice1.pdf invoice2.pdf
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"docdash/internal/app"
	"docdash/internal/config"
	"docdash/internal/domain"
	"docdash/internal/logging"
	"docdash/internal/metrics"
	"docdash/internal/resilience"
	"docdash/internal/service"
)

const (
	exitOK      = 0
	exitInvalid = 1
)

// errInvalid marks failures caused by bad input rather than the backend.
var errInvalid = errors.New("invalid input")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	label  string
	out    string
	noPoll bool
	files  []string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("docdash", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVarP(&opts.label, "label", "l", "", "customer or vendor label used as the object key prefix")
	fs.StringVarP(&opts.out, "out", "o", "", "output file (.csv or .xlsx); defaults to {label}_{date}.csv")
	fs.BoolVar(&opts.noPoll, "no-poll", false, "upload only, skip waiting for results")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	opts.files = fs.Args()
	return opts, nil
}

// exportFormat picks the export format from the output extension.
func exportFormat(out string) (domain.ExportFormat, error) {
	if out == "" {
		return domain.ExportFormatCSV, nil
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".csv":
		return domain.ExportFormatCSV, nil
	case ".xlsx":
		return domain.ExportFormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedExport, out)
	}
}

func readFiles(paths []string) ([]service.UploadFile, error) {
	files := make([]service.UploadFile, 0, len(paths))
	for _, p := range paths {
		body, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", errInvalid, p, err)
		}
		files = append(files, service.UploadFile{Filename: filepath.Base(p), Body: body})
	}
	return files, nil
}

func isValidation(err error) bool {
	for _, target := range []error{
		errInvalid,
		domain.ErrMissingLabel,
		domain.ErrNoFiles,
		domain.ErrTooManyFiles,
		domain.ErrFileTooLarge,
		domain.ErrUnsupportedExport,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := execute(ctx, args, stdout, stderr)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "docdash: %v\n", err)
	if isValidation(err) {
		return exitInvalid
	}
	return exitOK
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	format, err := exportFormat(opts.out)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: loading config: %v", errInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}
	logger, err := logging.New(cfg.Log, cfg.Server.Environment)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}
	defer func() { _ = logger.Sync() }()

	gw, err := app.NewGateway(cfg, resilience.NewGuard(cfg.Resilience, logger))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}
	pipeline, err := app.NewPipeline(cfg, gw, metrics.NewPipelineMetrics(), logger)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalid, err)
	}

	files, err := readFiles(opts.files)
	if err != nil {
		return err
	}
	if err := pipeline.ValidateBatch(opts.label, files); err != nil {
		return err
	}

	sess := domain.NewSession()
	if !opts.noPoll {
		fmt.Fprintf(stdout, "uploading %d file(s), then waiting %s before polling\n", len(files), cfg.Poll.PostUploadDelay)
	}
	result, err := pipeline.UploadBatch(ctx, sess, opts.label, files, !opts.noPoll)
	if result != nil {
		printUploads(stdout, result.Uploads)
		if result.Poll != nil {
			printPoll(stdout, result.Poll)
		}
	}
	if err != nil {
		return err
	}
	if opts.noPoll {
		return nil
	}

	file, err := pipeline.Export(sess, format)
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = file.Filename
	}
	if err := os.WriteFile(out, file.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	logger.Info("results exported", zap.String("path", out), zap.String("format", string(format)))
	fmt.Fprintf(stdout, "wrote %s\n", out)
	return nil
}

func printUploads(w io.Writer, uploads []domain.UploadOutcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKEY\tSTATUS\tDETAIL")
	for _, u := range uploads {
		detail := u.Reason
		if u.StatusCode != 0 && u.StatusCode != 200 {
			detail = fmt.Sprintf("HTTP %d %s", u.StatusCode, u.BodySnippet)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Filename, u.ObjectKey, u.Status, strings.TrimSpace(detail))
	}
	_ = tw.Flush()
}

func printPoll(w io.Writer, outcome *domain.PollOutcome) {
	fmt.Fprintf(w, "polled %d pass(es): %d resolved, %d pending, %d failed (%d attempt(s) left)\n",
		outcome.Passes,
		outcome.Count(domain.KeyStateResolved),
		outcome.Count(domain.KeyStateStillPending),
		outcome.Count(domain.KeyStateFailed),
		outcome.AttemptsRemaining,
	)
	for _, k := range outcome.Keys {
		switch {
		case k.Failure != nil:
			fmt.Fprintf(w, "  %s: %s\n", k.ObjectKey, k.Failure.Error())
		case k.LastError != "":
			fmt.Fprintf(w, "  %s: %s\n", k.ObjectKey, k.LastError)
		}
	}
	if outcome.BudgetExhausted {
		fmt.Fprintln(w, "attempt budget exhausted; some documents are still processing")
	}
}
