package configrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Promptonauts/configrepo/pkg/contract"
	"github.com/Promptonauts/configrepo/pkg/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Outcome string

const (
	// OutcomeRejected means the document had validation findings and was discarded whole.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnchanged means the document equals the active one; no reload is triggered.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeReloaded means the document replaced the active one under a new revision.
	OutcomeReloaded Outcome = "reloaded"
	// OutcomeFailed means the source could not be read or parsed.
	OutcomeFailed Outcome = "failed"
)

// Revision is an accepted, validated document. It is never mutated after
// it becomes active.
type Revision struct {
	ID         string
	Source     string
	Document   *Document
	AcceptedAt time.Time
}

type Result struct {
	Source   string             `json:"source"`
	Outcome  Outcome            `json:"outcome"`
	Revision string             `json:"revision,omitempty"`
	Findings []contract.Finding `json:"findings,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Source is something the reconciler can poll for a document.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads a document from a local file.
type FileSource struct {
	SourceName string
	Path       string
}

func (f FileSource) Name() string { return f.SourceName }

func (f FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

// Reconciler keeps the active revision per source and decides, for every
// freshly read document, whether it warrants a reload.
type Reconciler struct {
	mu       sync.RWMutex
	active   map[string]*Revision
	onReload []func(*Revision)

	logger  *slog.Logger
	metrics *observability.IngestMetrics
	now     func() time.Time
}

func NewReconciler(logger *slog.Logger, metrics *observability.IngestMetrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewIngestMetrics(observability.NewMetricsRegistry())
	}
	return &Reconciler{
		active:  make(map[string]*Revision),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// OnReload registers fn to run after a new revision becomes active.
func (r *Reconciler) OnReload(fn func(*Revision)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Ingest parses, validates and reconciles one document. A parse failure is
// returned as an error; validation findings produce OutcomeRejected.
func (r *Reconciler) Ingest(source string, data []byte) (*Result, error) {
	doc, err := ParseDocument(source, data)
	if err != nil {
		r.logger.Warn("config repo parse failed", slog.String("source", source), slog.Any("error", err))
		return nil, err
	}
	return r.Reconcile(doc), nil
}

// Reconcile validates doc and swaps it in if it differs from the active revision.
func (r *Reconciler) Reconcile(doc *Document) *Result {
	start := time.Now()
	errs := doc.Validate()
	r.metrics.ValidationLatency.ObserveDuration(time.Since(start))
	r.metrics.ValidationPasses.Inc()

	result := &Result{Source: doc.Source}
	if !errs.Empty() {
		r.metrics.Findings.Add(int64(errs.Len()))
		r.metrics.Rejected.Inc()
		result.Outcome = OutcomeRejected
		result.Findings = errs.Findings()
		r.logger.Info("config repo rejected",
			slog.String("source", doc.Source),
			slog.Int("findings", errs.Len()))
		return result
	}

	r.mu.Lock()
	current, ok := r.active[doc.Source]
	if ok && current.Document.Equal(doc) {
		r.mu.Unlock()
		r.metrics.Unchanged.Inc()
		result.Outcome = OutcomeUnchanged
		result.Revision = current.ID
		r.logger.Debug("config repo unchanged",
			slog.String("source", doc.Source),
			slog.String("revision", current.ID))
		return result
	}

	rev := &Revision{
		ID:         uuid.New().String(),
		Source:     doc.Source,
		Document:   doc,
		AcceptedAt: r.now().UTC(),
	}
	r.active[doc.Source] = rev
	r.metrics.ActiveSources.Set(int64(len(r.active)))
	hooks := append([]func(*Revision){}, r.onReload...)
	r.mu.Unlock()

	r.metrics.Reloads.Inc()
	result.Outcome = OutcomeReloaded
	result.Revision = rev.ID
	r.logger.Info("config repo reloaded",
		slog.String("source", doc.Source),
		slog.String("revision", rev.ID),
		slog.Int("jobs", len(doc.Jobs)))

	for _, fn := range hooks {
		fn(rev)
	}
	return result
}

// IngestAll reads and reconciles sources concurrently, at most limit at a
// time (no limit when limit <= 0). Per-source failures are reported in the
// results; only context cancellation is returned as an error.
func (r *Reconciler) IngestAll(ctx context.Context, sources []Source, limit int) ([]*Result, error) {
	results := make([]*Result, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			data, err := src.Read(gctx)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i] = failed(src.Name(), fmt.Errorf("read %s: %w", src.Name(), err))
				return nil
			}
			res, err := r.Ingest(src.Name(), data)
			if err != nil {
				results[i] = failed(src.Name(), err)
				return nil
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func failed(source string, err error) *Result {
	return &Result{Source: source, Outcome: OutcomeFailed, Error: err.Error()}
}

func (r *Reconciler) Active(source string) (*Revision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.active[source]
	return rev, ok
}

// Sources lists sources with an active revision, sorted.
func (r *Reconciler) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
