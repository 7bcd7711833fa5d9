package prusaslicer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"platebatch/internal/logging"
	"platebatch/internal/services"
)

// stderrTail is how many trailing stderr lines an error carries.
const stderrTail = 8

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// Result captures one slicer invocation.
type Result struct {
	GCodePath string
	Args      []string
	Stdout    []string
	Stderr    []string
	Duration  time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for slicer diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrinterTechnology overrides the --printer-technology argument.
func WithPrinterTechnology(tech string) Option {
	return func(c *Client) {
		if tech = strings.TrimSpace(tech); tech != "" {
			c.technology = tech
		}
	}
}

// Client wraps PrusaSlicer CLI interactions.
type Client struct {
	binary     string
	timeout    time.Duration
	technology string
	exec       Executor
	logger     *slog.Logger
}

// New constructs a PrusaSlicer client. A zero timeout disables the deadline.
func New(binary string, timeout time.Duration, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("prusaslicer binary required")
	}
	client := &Client{
		binary:     binary,
		timeout:    timeout,
		technology: "FFF",
		exec:       commandExecutor{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "prusaslicer")
	return client, nil
}

// Args returns the command line used to slice archivePath into gcodePath.
func (c *Client) Args(archivePath, gcodePath string) []string {
	return []string{
		"--printer-technology", c.technology,
		"--slice",
		"--export-gcode",
		"-o", gcodePath,
		archivePath,
	}
}

// Slice exports G-code for archivePath to gcodePath.
func (c *Client) Slice(ctx context.Context, archivePath, gcodePath string) (Result, error) {
	if _, err := os.Stat(archivePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, services.Wrap(services.ErrMissingSource, "slice", "stat archive", archivePath, err)
		}
		return Result{}, fmt.Errorf("stat archive: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(gcodePath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create gcode directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res := Result{GCodePath: gcodePath, Args: c.Args(archivePath, gcodePath)}
	var mu sync.Mutex
	start := time.Now()
	err := c.exec.Run(runCtx, c.binary, res.Args,
		func(line string) {
			mu.Lock()
			res.Stdout = append(res.Stdout, line)
			mu.Unlock()
			c.logger.Debug("prusaslicer output", logging.String("line", line))
		},
		func(line string) {
			mu.Lock()
			res.Stderr = append(res.Stderr, line)
			mu.Unlock()
		},
	)
	res.Duration = time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, services.Wrap(services.ErrTimeout, "slice", "run", fmt.Sprintf("%s exceeded %s", filepath.Base(archivePath), c.timeout), err)
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, services.Wrap(services.ErrExternalTool, "slice", "run", tail(res.Stderr), err)
	}
	if _, err := os.Stat(gcodePath); err != nil {
		return res, services.Wrap(services.ErrExternalTool, "slice", "verify output", "prusaslicer produced no gcode at "+gcodePath, err)
	}

	if len(res.Stderr) > 0 {
		logging.WarnWithContext(c.logger, "prusaslicer reported diagnostics", "prusaslicer_diagnostics",
			logging.String("archive", archivePath),
			logging.Int("stderr_lines", len(res.Stderr)),
			logging.String("last_line", res.Stderr[len(res.Stderr)-1]),
			logging.String(logging.FieldErrorHint, "inspect the package in PrusaSlicer"),
			logging.String(logging.FieldImpact, "gcode was exported but may need review"),
		)
	}
	return res, nil
}

func tail(lines []string) string {
	if len(lines) == 0 {
		return "exit without diagnostics"
	}
	if len(lines) > stderrTail {
		lines = lines[len(lines)-stderrTail:]
	}
	return strings.Join(lines, " | ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
