package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"platebatch/internal/config"
	"platebatch/internal/document"
	"platebatch/internal/fileutil"
	"platebatch/internal/jobs"
	"platebatch/internal/ledger"
	"platebatch/internal/logging"
	"platebatch/internal/mesh"
	"platebatch/internal/metadata"
	"platebatch/internal/pkgarchive"
	"platebatch/internal/services"
	"platebatch/internal/services/prusaslicer"
	"platebatch/internal/specimen"
)

// LockFileName is created in the work directory while a run is active.
const LockFileName = ".platebatch.lock"

// Slicer converts an output archive to G-code.
type Slicer interface {
	Slice(ctx context.Context, archivePath, gcodePath string) (prusaslicer.Result, error)
}

// Uploader publishes a produced file and returns its remote identifier.
type Uploader interface {
	Upload(ctx context.Context, localPath, destination string) (string, error)
}

// Recorder persists run history.
type Recorder interface {
	BeginRun(ctx context.Context, run ledger.Run) error
	RecordBatch(ctx context.Context, batch ledger.Batch) error
	FinishRun(ctx context.Context, id string, status ledger.RunStatus, batches int, runErr error) error
}

// Options controls where the composer reads and writes and how batches are
// laid out.
type Options struct {
	SpecimenDir string
	Template    string
	OutputDir   string
	WorkDir     string
	MaxObjects  int
	IDWidth     int
	BaseName    string
	Naming      string
	// Destination is passed to the uploader for every published file.
	Destination string
	// MetricsTextfile, when set, receives the metric values after each run.
	MetricsTextfile string
	// Source describes where the records came from, for the run ledger.
	Source string
}

// OptionsFromConfig maps the loaded configuration onto composer options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SpecimenDir:     cfg.Paths.SpecimenDir,
		Template:        cfg.Paths.Template,
		OutputDir:       cfg.Paths.OutputDir,
		WorkDir:         cfg.Paths.WorkDir,
		MaxObjects:      cfg.Batch.MaxObjects,
		IDWidth:         cfg.Batch.IDWidth,
		BaseName:        cfg.Batch.BaseName,
		Naming:          cfg.Batch.Naming,
		Destination:     cfg.Upload.Destination,
		MetricsTextfile: cfg.Metrics.Textfile,
	}
}

// Output describes one produced package.
type Output struct {
	Batch         int
	ArchivePath   string
	GCodePath     string
	RemoteID      string
	GCodeRemoteID string
	SpecimenIDs   []string
	Duration      time.Duration
}

// Report summarises a run.
type Report struct {
	RunID       string
	Records     int
	Outputs     []Output
	Extractions int
	State       State
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger attaches a logger for run progress.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSlicer enables slicing of every produced archive.
func WithSlicer(s Slicer) Option {
	return func(c *Composer) { c.slicer = s }
}

// WithUploader enables publishing of every produced file.
func WithUploader(u Uploader) Option {
	return func(c *Composer) { c.uploader = u }
}

// WithRecorder attaches a run history store.
func WithRecorder(r Recorder) Option {
	return func(c *Composer) { c.recorder = r }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// WithExtractor overrides archive extraction for the template and specimens.
func WithExtractor(fn specimen.Extractor) Option {
	return func(c *Composer) {
		if fn != nil {
			c.extract = fn
		}
	}
}

// WithClock overrides the time source used for naming and history.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(c *Composer) { c.runID = id }
}

// Composer builds output packages from specimen records.
type Composer struct {
	opts     Options
	logger   *slog.Logger
	slicer   Slicer
	uploader Uploader
	recorder Recorder
	metrics  *Metrics
	extract  specimen.Extractor
	now      func() time.Time
	runID    string
	state    State
}

// New constructs a Composer.
func New(opts Options, options ...Option) (*Composer, error) {
	if strings.TrimSpace(opts.Template) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "compose", "init", "template path not configured", nil)
	}
	if strings.TrimSpace(opts.OutputDir) == "" || strings.TrimSpace(opts.WorkDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "compose", "init", "output and work directories must be configured", nil)
	}
	if opts.MaxObjects <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "compose", "init", fmt.Sprintf("max objects must be positive, got %d", opts.MaxObjects), nil)
	}
	c := &Composer{
		opts:    opts,
		logger:  logging.NewNop(),
		extract: pkgarchive.Extract,
		now:     func() time.Time { return time.Now().UTC() },
		state:   StateIdle,
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logging.NewComponentLogger(c.logger, "compose")
	return c, nil
}

// State reports the state reached by the most recent run.
func (c *Composer) State() State { return c.state }

// Run composes every record into output packages. Records are partitioned in
// order; record k of a batch fills template object slot k.
func (c *Composer) Run(ctx context.Context, records []jobs.Record) (report *Report, err error) {
	batches, err := Partition(records, c.opts.MaxObjects)
	if err != nil {
		return nil, err
	}

	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, c.logger)
	c.state = StateIdle

	report = &Report{RunID: runID, Records: len(records), State: StateIdle, StartedAt: c.now()}

	if err := os.MkdirAll(c.opts.WorkDir, 0o755); err != nil {
		return report, services.Wrap(services.ErrConfiguration, "compose", "prepare", "create work directory", err)
	}
	if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
		return report, services.Wrap(services.ErrConfiguration, "compose", "prepare", "create output directory", err)
	}

	lock := flock.New(filepath.Join(c.opts.WorkDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return report, services.Wrap(services.ErrConfiguration, "compose", "lock", "acquire work directory lock", err)
	}
	if !locked {
		return report, services.Wrap(services.ErrConfiguration, "compose", "lock", fmt.Sprintf("another run holds %s", lock.Path()), nil)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logging.WarnWithContext(logger, "failed to release work directory lock", "lock_release",
				logging.Error(unlockErr),
				logging.String(logging.FieldErrorHint, "remove the lock file if no run is active"),
			)
		}
	}()

	runDir, err := os.MkdirTemp(c.opts.WorkDir, "run-")
	if err != nil {
		return report, services.Wrap(services.ErrConfiguration, "compose", "prepare", "create run directory", err)
	}
	defer c.removeDir(logger, runDir)

	if c.recorder != nil {
		run := ledger.Run{ID: runID, Source: c.opts.Source, Records: len(records), StartedAt: report.StartedAt}
		if err := c.recorder.BeginRun(ctx, run); err != nil {
			return report, services.Wrap(services.ErrTransient, "compose", "record run", "begin run in ledger", err)
		}
	}
	defer func() {
		c.finish(ctx, logger, report, err)
	}()

	logger.Info("composition started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("records", len(records)),
		logging.Int("batches", len(batches)),
		logging.Int("max_objects", c.opts.MaxObjects),
	)

	templateDir, err := c.extract(c.opts.Template, runDir)
	if err != nil {
		return report, fmt.Errorf("template: %w", err)
	}
	defer c.removeDir(logger, templateDir)
	c.transition(logger, report, StateTemplateExtracted, 0)

	cache := specimen.NewCache(c.opts.SpecimenDir, c.opts.IDWidth, runDir,
		specimen.WithExtractor(c.extract),
		specimen.WithLogger(logger),
	)
	defer func() {
		_ = cache.Release()
	}()

	meshes, err := c.resolveSpecimens(ctx, cache, records)
	report.Extractions = cache.Extractions()
	if c.metrics != nil {
		c.metrics.Extractions.Add(float64(cache.Extractions()))
	}
	if err != nil {
		return report, err
	}
	c.transition(logger, report, StateSpecimensResolved, 0)

	namer := NewNamer(c.opts.Naming, c.opts.BaseName, c.opts.IDWidth)
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out, err := c.composeBatch(ctx, report, batch, templateDir, runDir, meshes, namer)
		if err != nil {
			return report, fmt.Errorf("batch %d: %w", batch.Index, err)
		}
		report.Outputs = append(report.Outputs, out)
	}
	return report, nil
}

// specimenMesh is the mesh block lifted from one specimen and its primitive count.
type specimenMesh struct {
	block      string
	primitives int
}

func (c *Composer) resolveSpecimens(ctx context.Context, cache *specimen.Cache, records []jobs.Record) (map[string]specimenMesh, error) {
	meshes := make(map[string]specimenMesh)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := cache.Get(rec.SpecimenID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if _, ok := meshes[entry.ID]; ok {
			continue
		}
		geometry, err := document.Read(document.GeometryPath(entry.Dir))
		if err != nil {
			return nil, fmt.Errorf("specimen %s: %w", entry.ID, err)
		}
		block, err := mesh.ExtractMesh(geometry.Body)
		if err != nil {
			return nil, fmt.Errorf("specimen %s: %w", entry.ID, err)
		}
		meshes[entry.ID] = specimenMesh{block: block, primitives: mesh.CountPrimitives(block)}
	}
	return meshes, nil
}

func (c *Composer) composeBatch(ctx context.Context, report *Report, batch Batch, templateDir, runDir string, meshes map[string]specimenMesh, namer *Namer) (Output, error) {
	started := c.now()
	ctx = services.WithBatch(ctx, batch.Index)
	logger := logging.WithContext(ctx, c.logger)

	outDir, err := os.MkdirTemp(runDir, fmt.Sprintf("batch-%d-", batch.Index))
	if err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "compose", "prepare batch", "create batch directory", err)
	}
	defer c.removeDir(logger, outDir)
	if err := fileutil.CopyTree(templateDir, outDir); err != nil {
		return Output{}, services.Wrap(services.ErrTransient, "compose", "copy template", "copy template working directory", err)
	}

	geometryPath := document.GeometryPath(outDir)
	geometry, err := document.Read(geometryPath)
	if err != nil {
		return Output{}, fmt.Errorf("template: %w", err)
	}
	metadataPath := document.MetadataPath(outDir)
	meta, err := document.Read(metadataPath)
	if err != nil {
		return Output{}, fmt.Errorf("template: %w", err)
	}

	blocks := make([]string, 0, len(batch.Items))
	slots := make([]metadata.Slot, 0, len(batch.Items))
	primitives := make(map[int]int, len(batch.Items))
	for _, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		key := specimen.PadID(item.Record.SpecimenID, c.opts.IDWidth)
		m, ok := meshes[key]
		if !ok {
			return Output{}, services.Wrap(services.ErrMissingSource, "compose", "assign slot", fmt.Sprintf("slot %d: specimen %s not resolved", item.Slot, key), nil)
		}
		blocks = append(blocks, m.block)
		slots = append(slots, metadata.Slot{ID: item.Slot, Params: slotParams(item.Record)})
		primitives[item.Slot] = m.primitives
		logger.Debug("slot assigned",
			logging.Int(logging.FieldSlot, item.Slot),
			logging.String(logging.FieldSpecimenID, key),
			logging.Int("primitives", m.primitives),
		)
	}

	spliced, err := mesh.SpliceSlots(geometry.Body, blocks)
	if err != nil {
		return Output{}, err
	}
	c.transition(logger, report, StateSlotsSpliced, batch.Index)

	patched, err := metadata.PatchBatch(meta.Body, slots, primitives)
	if err != nil {
		return Output{}, err
	}
	c.transition(logger, report, StateMetadataPatched, batch.Index)

	if err := document.Write(geometryPath, geometry.WithBody(spliced)); err != nil {
		return Output{}, err
	}
	if err := document.Write(metadataPath, meta.WithBody(patched)); err != nil {
		return Output{}, err
	}

	archive := filepath.Join(c.opts.OutputDir, namer.Name(batch, c.now()))
	if err := pkgarchive.Repack(outDir, archive); err != nil {
		return Output{}, err
	}
	c.transition(logger, report, StateRepacked, batch.Index)

	out := Output{Batch: batch.Index, ArchivePath: archive, SpecimenIDs: batch.SpecimenIDs()}
	if err := c.postProcess(ctx, logger, &out); err != nil {
		return out, err
	}
	out.Duration = c.now().Sub(started)

	if c.recorder != nil {
		record := ledger.Batch{
			RunID:       report.RunID,
			Index:       batch.Index,
			Archive:     out.ArchivePath,
			GCode:       out.GCodePath,
			RemoteID:    out.RemoteID,
			SpecimenIDs: out.SpecimenIDs,
			CreatedAt:   c.now(),
		}
		if err := c.recorder.RecordBatch(ctx, record); err != nil {
			return out, services.Wrap(services.ErrTransient, "compose", "record batch", "write batch to ledger", err)
		}
	}
	if c.metrics != nil {
		c.metrics.Batches.Inc()
		c.metrics.Objects.Add(float64(len(batch.Items)))
		c.metrics.BatchTime.Observe(out.Duration.Seconds())
	}
	logger.Info("batch written",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.String("archive", out.ArchivePath),
		logging.Int("objects", len(batch.Items)),
		logging.String("specimens", strings.Join(out.SpecimenIDs, ",")),
	)
	return out, nil
}

// postProcess slices and uploads a produced archive when the collaborators are attached.
func (c *Composer) postProcess(ctx context.Context, logger *slog.Logger, out *Output) error {
	if c.slicer != nil {
		gcode := strings.TrimSuffix(out.ArchivePath, filepath.Ext(out.ArchivePath)) + ".gcode"
		result, err := c.slicer.Slice(ctx, out.ArchivePath, gcode)
		if err != nil {
			return err
		}
		out.GCodePath = result.GCodePath
		logger.Info("batch sliced",
			logging.String(logging.FieldEventType, "slice_complete"),
			logging.String("gcode", out.GCodePath),
			logging.Duration("elapsed", result.Duration),
		)
	}
	if c.uploader != nil {
		remote, err := c.uploader.Upload(ctx, out.ArchivePath, c.opts.Destination)
		if err != nil {
			return err
		}
		out.RemoteID = remote
		if out.GCodePath != "" {
			remote, err := c.uploader.Upload(ctx, out.GCodePath, c.opts.Destination)
			if err != nil {
				return err
			}
			out.GCodeRemoteID = remote
		}
	}
	return nil
}

// slotParams builds the metadata fields written for one record. The optional
// integer fields are only written when present.
func slotParams(rec jobs.Record) []metadata.Param {
	params := []metadata.Param{
		{Key: metadata.KeyFillDensity, Value: metadata.FillDensity(rec.FillDensity)},
		{Key: metadata.KeyFillPattern, Value: rec.FillPattern},
	}
	if rec.SolidInfillEveryLayers != nil {
		params = append(params, metadata.Param{Key: metadata.KeySolidInfillEveryLayers, Value: strconv.Itoa(*rec.SolidInfillEveryLayers)})
	}
	if rec.Perimeters != nil {
		params = append(params, metadata.Param{Key: metadata.KeyPerimeters, Value: strconv.Itoa(*rec.Perimeters)})
	}
	return params
}

func (c *Composer) transition(logger *slog.Logger, report *Report, next State, batch int) {
	if report.State.Terminal() {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "state_transition"),
		logging.String("from", string(c.state)),
		logging.String(logging.FieldStage, string(next)),
	}
	if batch > 0 {
		attrs = append(attrs, logging.Int(logging.FieldBatch, batch))
	}
	logger.Debug("state transition", logging.Args(attrs...)...)
	c.state = next
	report.State = next
}

// finish settles the terminal state, ledger row, and metrics for a run.
func (c *Composer) finish(ctx context.Context, logger *slog.Logger, report *Report, runErr error) {
	report.FinishedAt = c.now()
	status := ledger.RunSucceeded
	if runErr != nil {
		status = ledger.RunFailed
		c.transition(logger, report, StateFailed, 0)
		logging.ErrorWithContext(logger, "composition failed", "run_failed",
			logging.Error(runErr),
			logging.String("error_kind", services.Kind(runErr)),
			logging.Int("batches_written", len(report.Outputs)),
			logging.String(logging.FieldErrorHint, failureHint(runErr)),
		)
	} else {
		c.transition(logger, report, StateDone, 0)
		logger.Info("composition complete",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Int("batches", len(report.Outputs)),
			logging.Int("extractions", report.Extractions),
			logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
	}

	if c.recorder != nil {
		// The run context may already be cancelled; the ledger row still needs closing.
		if err := c.recorder.FinishRun(context.WithoutCancel(ctx), report.RunID, status, len(report.Outputs), runErr); err != nil {
			logging.WarnWithContext(logger, "failed to finish run in ledger", "ledger_write",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run history shows the run as still running"),
			)
		}
	}
	if c.metrics != nil {
		c.metrics.Runs.WithLabelValues(string(status)).Inc()
		if runErr != nil {
			c.metrics.Failures.WithLabelValues(services.Kind(runErr)).Inc()
		}
		if c.opts.MetricsTextfile != "" {
			if err := c.metrics.WriteTextfile(c.opts.MetricsTextfile); err != nil {
				logging.WarnWithContext(logger, "failed to write metrics textfile", "metrics_write",
					logging.Error(err),
					logging.String("path", c.opts.MetricsTextfile),
					logging.String(logging.FieldImpact, "metrics for this run are not exported"),
				)
			}
		}
	}
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrMissingSource):
		return "check paths.template, paths.specimen_dir and the specimen ids in the batch list"
	case errors.Is(err, services.ErrObjectNotFound):
		return "the template has fewer object slots than batch.max_objects"
	case errors.Is(err, services.ErrMeshNotFound):
		return "a specimen package has no mesh; re-export it"
	case errors.Is(err, services.ErrVolumeRecordMissing):
		return "the template metadata lacks a volume record for a slot"
	case errors.Is(err, services.ErrInvalidBatchSpec):
		return "fix the batch list record named in the error"
	case errors.Is(err, services.ErrExternalTool), errors.Is(err, services.ErrTimeout):
		return "check the slicer output; run platebatch slice on the archive to reproduce"
	case errors.Is(err, context.Canceled):
		return "run was interrupted; rerun to regenerate outputs"
	default:
		return "check logs for details"
	}
}

func (c *Composer) removeDir(logger *slog.Logger, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logger, "failed to remove temporary directory", "cleanup",
			logging.String("dir", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "scratch space is not reclaimed"),
		)
	}
}
