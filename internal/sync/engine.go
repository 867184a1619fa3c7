package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/kettleworks/storysync/internal/device"
	"github.com/kettleworks/storysync/internal/hash"
	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/manifest"
	"github.com/kettleworks/storysync/internal/model"
	"github.com/kettleworks/storysync/internal/remote"
	"github.com/kettleworks/storysync/internal/store"
	"github.com/kettleworks/storysync/internal/syncerr"
)

// Phase names one stage of a sync round, in the order rounds run them.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseConnecting  Phase = "connecting"
	PhaseChecking    Phase = "checking"
	PhaseComparing   Phase = "comparing"
	PhaseResolving   Phase = "resolving"
	PhaseUploading   Phase = "uploading"
	PhaseDownloading Phase = "downloading"
	PhaseDeleting    Phase = "deleting"
	PhaseFinalizing  Phase = "finalizing"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
)

// Progress is a point-in-time snapshot of a running round, delivered to
// the progress callback.
type Progress struct {
	Phase    Phase
	Percent  int
	Category model.Category
	Item     string
}

// ProgressFunc observes round progress. Callbacks run on the syncing
// goroutine and should return quickly.
type ProgressFunc func(Progress)

// ErrSyncInProgress is returned inside a skipped result when a round is
// already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// defaultMinInterval is the minimum spacing between unforced rounds.
const defaultMinInterval = time.Minute

// mimeWebP is the MIME type for image payloads and thumbnails.
const mimeWebP = "image/webp"

// Options configures an Engine.
type Options struct {
	// Strategy resolves conflicts; required.
	Strategy Strategy

	// Decide supplies answers for StrategyAsk. Ignored otherwise.
	Decide DecisionFunc

	// OnProgress, when set, receives phase and percent updates.
	OnProgress ProgressFunc

	// BlobDir is where downloaded image binaries are written.
	BlobDir string

	// MinInterval is the minimum spacing between unforced rounds.
	// Zero means the default of one minute.
	MinInterval time.Duration
}

// RunOptions tune a single round.
type RunOptions struct {
	// Force bypasses the minimum-interval check.
	Force bool

	// DryRun computes and resolves the plan but transfers nothing and
	// leaves both sides untouched.
	DryRun bool
}

// Engine orchestrates sync rounds. At most one round runs per engine at
// a time; overlapping calls are rejected, not queued.
type Engine struct {
	store    *store.Store
	remote   remote.Store
	identity device.Identity
	builder  *manifest.Builder
	calc     *Calculator
	resolver *Resolver
	opts     Options

	running atomic.Bool

	mu      stdsync.Mutex
	lastRun time.Time
}

// NewEngine wires an engine over the local store and a remote backend.
func NewEngine(s *store.Store, r remote.Store, id device.Identity, opts Options) *Engine {
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	return &Engine{
		store:    s,
		remote:   r,
		identity: id,
		builder:  manifest.NewBuilder(s, hash.New(), id),
		calc:     NewCalculator(s),
		resolver: NewResolver(),
		opts:     opts,
	}
}

// Syncing reports whether a round is currently running.
func (e *Engine) Syncing() bool {
	return e.running.Load()
}

// Sync runs one full round and always returns a result; failures are
// reported through Result.Errors rather than a panic or a bare error.
func (e *Engine) Sync(ctx context.Context, run RunOptions) *Result {
	res := newResult()
	res.DryRun = run.DryRun

	if !e.running.CompareAndSwap(false, true) {
		res.Skipped = true
		res.addError(ErrSyncInProgress)
		return res.finish()
	}
	defer e.running.Store(false)

	if !run.Force && !e.intervalElapsed() {
		res.Skipped = true
		logging.Debug("sync skipped, minimum interval not elapsed")
		return res.finish()
	}
	e.markRun()

	defer logging.Timer("sync round")()
	e.runRound(ctx, run, res)

	if res.Success {
		e.report(Progress{Phase: PhaseDone, Percent: 100})
	} else {
		e.report(Progress{Phase: PhaseError, Percent: 100})
	}
	return res
}

func (e *Engine) intervalElapsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Since(e.lastRun) >= e.opts.MinInterval
}

func (e *Engine) markRun() {
	e.mu.Lock()
	e.lastRun = time.Now()
	e.mu.Unlock()
}

func (e *Engine) report(p Progress) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(p)
	}
}

// runRound executes the phases of one round, accumulating into res. It
// finishes res before returning.
func (e *Engine) runRound(ctx context.Context, run RunOptions, res *Result) {
	e.report(Progress{Phase: PhaseConnecting, Percent: 0})

	e.report(Progress{Phase: PhaseChecking, Percent: 10})
	remoteManifest, err := e.fetchRemoteManifest(ctx)
	if err != nil {
		res.addError(err)
		res.finish()
		return
	}

	local, err := e.builder.Build()
	if err != nil {
		res.addError(syncerr.Wrap(syncerr.KindInvalidData, "build manifest", err))
		res.finish()
		return
	}

	e.report(Progress{Phase: PhaseComparing, Percent: 20})
	delta := e.calc.Compare(local, remoteManifest)

	if !delta.HasChanges() {
		logging.Info("nothing to sync")
		res.finish()
		return
	}

	if len(delta.Conflicts) > 0 {
		e.report(Progress{Phase: PhaseResolving, Percent: 25})
		res.Conflicts = len(delta.Conflicts)
		if err := e.resolver.Resolve(delta, e.opts.Strategy, e.opts.Decide); err != nil {
			res.addError(err)
			res.finish()
			return
		}
		if !delta.HasChanges() {
			// Every conflict was skipped and nothing else moved.
			res.finish()
			return
		}
	}

	if run.DryRun {
		e.tallyPlan(delta, res)
		res.finish()
		return
	}

	applied := e.transfer(ctx, delta, remoteManifest, res)

	e.report(Progress{Phase: PhaseFinalizing, Percent: 95})
	if applied.planFailed {
		// A failed upload or delete means the merged manifest would
		// claim state the remote does not hold. Leave the remote
		// manifest alone; the next round re-derives the delta.
		res.finish()
		return
	}

	// Failed downloads keep the remote's entry in the merged manifest;
	// the hash mismatch survives and the next round queues them again.
	overlay := applied.downloads
	for cat, ids := range applied.failedDownloads {
		overlay[cat] = append(overlay[cat], ids...)
	}

	merged := manifest.Merge(local, remoteManifest, overlay, applied.removedLocal, e.identity, time.Now())
	data, err := json.Marshal(merged)
	if err != nil {
		res.addError(syncerr.Wrap(syncerr.KindInvalidData, "encode manifest", err))
		res.finish()
		return
	}
	err = remote.WithRetry(ctx, "put manifest", func() error {
		return e.remote.PutJSON(ctx, "", remote.ManifestName, data)
	})
	if err != nil {
		res.addError(err)
		res.finish()
		return
	}

	if err := e.store.SetManifestVersion(merged.Version); err != nil {
		res.addError(err)
	}
	if err := e.store.SetLastSyncAt(time.Now()); err != nil {
		res.addError(err)
	}
	if err := e.store.ClearTombstones(applied.clearedTombstones); err != nil {
		res.addError(err)
	}
	if _, err := e.store.PruneTombstones(); err != nil {
		res.addError(err)
	}

	res.finish()
	if res.Success {
		logging.Info("sync round complete",
			logging.Count(merged.Version),
			logging.Device(e.identity.ID),
		)
	} else {
		logging.Warn("sync round completed with errors",
			logging.Count(len(res.Errors)),
			logging.Device(e.identity.ID),
		)
	}
}

// fetchRemoteManifest loads and parses the remote manifest. Absence is
// not an error; it means the remote was never synced to.
func (e *Engine) fetchRemoteManifest(ctx context.Context) (*manifest.Manifest, error) {
	var data []byte
	err := remote.WithRetry(ctx, "get manifest", func() error {
		var getErr error
		data, getErr = e.remote.GetJSON(ctx, "", remote.ManifestName)
		return getErr
	})
	if errors.Is(err, remote.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, syncerr.Wrap(syncerr.KindInvalidData, "parse manifest", err)
	}
	return &m, nil
}

// appliedPlan records what actually happened during the transfer phases,
// for the merge step and tombstone cleanup.
type appliedPlan struct {
	downloads         map[model.Category][]string
	failedDownloads   map[model.Category][]string
	removedLocal      []string
	clearedTombstones []string

	// planFailed is set when an upload or delete failed; the merged
	// manifest must not be written in that case.
	planFailed bool
}

// transfer runs the upload, download, and delete phases, counting items
// into res and collecting per-item failures without aborting the round.
func (e *Engine) transfer(ctx context.Context, d *Delta, remoteManifest *manifest.Manifest, res *Result) appliedPlan {
	applied := appliedPlan{
		downloads:       make(map[model.Category][]string),
		failedDownloads: make(map[model.Category][]string),
	}

	total := d.UploadCount() + d.DownloadCount() +
		len(d.ToDelete.Remote) + len(d.ToDelete.Local)
	done := 0
	step := func(phase Phase, cat model.Category, item string) {
		done++
		pct := 30
		if total > 0 {
			pct += done * 60 / total
		}
		e.report(Progress{Phase: phase, Percent: pct, Category: cat, Item: item})
	}

	for _, cat := range model.Categories() {
		for _, id := range d.ToUpload[cat] {
			step(PhaseUploading, cat, id)
			if err := e.uploadItem(ctx, cat, id); err != nil {
				res.addError(err)
				applied.planFailed = true
				continue
			}
			res.countUpload(cat)
		}
	}

	for _, cat := range model.Categories() {
		for _, id := range d.ToDownload[cat] {
			step(PhaseDownloading, cat, id)
			if err := e.downloadItem(ctx, cat, id, remoteManifest); err != nil {
				if errors.Is(err, remote.ErrNotExist) {
					// Listed in the manifest but the object is gone.
					// Nothing to apply; the next writer's manifest
					// will drop it.
					logging.Warn("remote object missing, skipping",
						logging.Category(string(cat)),
						logging.Item(id),
					)
					continue
				}
				res.addError(err)
				applied.failedDownloads[cat] = append(applied.failedDownloads[cat], id)
				continue
			}
			res.countDownload(cat)
			applied.downloads[cat] = append(applied.downloads[cat], id)
		}
	}

	for _, ts := range d.ToDelete.Remote {
		step(PhaseDeleting, ts.Type, ts.ID)
		if err := e.deleteRemote(ctx, ts); err != nil {
			res.addError(err)
			applied.planFailed = true
			continue
		}
		res.countDelete(ts.Type)
		applied.clearedTombstones = append(applied.clearedTombstones, ts.ID)
	}

	for _, ts := range d.ToDelete.Local {
		step(PhaseDeleting, ts.Type, ts.ID)
		if err := e.store.DeleteDocument(ts.Type, ts.ID); err != nil {
			res.addError(err)
			continue
		}
		res.countDelete(ts.Type)
		applied.removedLocal = append(applied.removedLocal, ts.ID)
	}

	return applied
}

// uploadItem pushes one record's metadata, plus its binary payload for
// image records. A record that vanished locally since the manifest was
// built is silently skipped.
func (e *Engine) uploadItem(ctx context.Context, cat model.Category, id string) error {
	doc, err := e.store.GetDocument(cat, id)
	if errors.Is(err, store.ErrNotFound) {
		logging.Debug("record vanished before upload",
			logging.Category(string(cat)),
			logging.Item(id),
		)
		return nil
	}
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInvalidData, "encode "+id, err)
	}

	err = remote.WithRetry(ctx, "upload "+id, func() error {
		return e.remote.PutJSON(ctx, remote.Folder(cat), remote.MetadataName(id), data)
	})
	if err != nil {
		return err
	}

	if cat.HasBinary() {
		if err := e.uploadBinary(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// uploadBinary pushes an image record's payload and thumbnail. A record
// whose local file is missing uploads metadata only.
func (e *Engine) uploadBinary(ctx context.Context, doc model.Document) error {
	localPath, _ := doc.Fields["localPath"].(string)
	if localPath == "" {
		return nil
	}
	payload, err := os.ReadFile(localPath)
	if err != nil {
		logging.Warn("image payload unreadable, uploading metadata only",
			logging.Item(doc.ID),
			logging.Path(localPath),
			logging.Err(err),
		)
		return nil
	}

	err = remote.WithRetry(ctx, "upload file "+doc.ID, func() error {
		return e.remote.PutBinary(ctx, remote.FilesFolder, remote.BinaryName(doc.ID), payload, mimeWebP)
	})
	if err != nil {
		return err
	}

	thumbPath, _ := doc.Fields["thumbnailLocalPath"].(string)
	if thumbPath == "" {
		return nil
	}
	thumb, err := os.ReadFile(thumbPath)
	if err != nil {
		return nil
	}
	return remote.WithRetry(ctx, "upload thumbnail "+doc.ID, func() error {
		return e.remote.PutBinary(ctx, remote.FilesFolder, remote.ThumbnailName(doc.ID), thumb, mimeWebP)
	})
}

// downloadItem pulls one record's metadata into the local store, plus
// its binary payload for image records.
func (e *Engine) downloadItem(ctx context.Context, cat model.Category, id string, remoteManifest *manifest.Manifest) error {
	var data []byte
	err := remote.WithRetry(ctx, "download "+id, func() error {
		var getErr error
		data, getErr = e.remote.GetJSON(ctx, remote.Folder(cat), remote.MetadataName(id))
		return getErr
	})
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return syncerr.Wrap(syncerr.KindInvalidData, "parse "+id, err)
	}

	doc := model.Document{
		ID:     id,
		Fields: fields,
	}
	if name, ok := fields["name"].(string); ok {
		doc.Name = name
	}
	if meta, ok := remoteManifest.Get(cat, id); ok {
		doc.UpdatedAt = meta.UpdatedAt
	} else {
		doc.UpdatedAt = time.Now()
	}

	if cat.HasBinary() {
		e.downloadBinary(ctx, doc.ID, fields)
	}

	return e.store.PutDocument(cat, doc)
}

// downloadBinary pulls an image record's payload and thumbnail into the
// blob directory, recording their local paths in the record's fields.
// Payload absence is tolerated; the metadata still syncs.
func (e *Engine) downloadBinary(ctx context.Context, id string, fields map[string]any) {
	if e.opts.BlobDir == "" {
		return
	}
	if err := os.MkdirAll(e.opts.BlobDir, 0o755); err != nil {
		logging.Warn("cannot create blob directory",
			logging.Path(e.opts.BlobDir),
			logging.Err(err),
		)
		return
	}

	fetch := func(name, field string) {
		var payload []byte
		err := remote.WithRetry(ctx, "download file "+name, func() error {
			var getErr error
			payload, getErr = e.remote.GetBinary(ctx, remote.FilesFolder, name)
			return getErr
		})
		if errors.Is(err, remote.ErrNotExist) {
			return
		}
		if err != nil {
			logging.Warn("image payload download failed",
				logging.Item(id),
				logging.Path(name),
				logging.Err(err),
			)
			return
		}
		dest := filepath.Join(e.opts.BlobDir, name)
		if err := os.WriteFile(dest, payload, 0o644); err != nil {
			logging.Warn("cannot write image payload",
				logging.Path(dest),
				logging.Err(err),
			)
			return
		}
		fields[field] = dest
	}

	fetch(remote.BinaryName(id), "localPath")
	fetch(remote.ThumbnailName(id), "thumbnailLocalPath")
}

// deleteRemote removes one record's objects from the remote, payloads
// included for images. Absence is not an error.
func (e *Engine) deleteRemote(ctx context.Context, ts model.Tombstone) error {
	type object struct {
		folder string
		name   string
	}
	names := []object{{remote.Folder(ts.Type), remote.MetadataName(ts.ID)}}
	if ts.Type.HasBinary() {
		names = append(names,
			object{remote.FilesFolder, remote.BinaryName(ts.ID)},
			object{remote.FilesFolder, remote.ThumbnailName(ts.ID)},
		)
	}

	for _, n := range names {
		err := remote.WithRetry(ctx, fmt.Sprintf("delete %s/%s", n.folder, n.name), func() error {
			return e.remote.Delete(ctx, n.folder, n.name)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// tallyPlan counts a dry run's plan into the result without transferring.
func (e *Engine) tallyPlan(d *Delta, res *Result) {
	for _, cat := range model.Categories() {
		for range d.ToUpload[cat] {
			res.countUpload(cat)
		}
		for range d.ToDownload[cat] {
			res.countDownload(cat)
		}
	}
	for _, ts := range d.ToDelete.Remote {
		res.countDelete(ts.Type)
	}
	for _, ts := range d.ToDelete.Local {
		res.countDelete(ts.Type)
	}
}
