package normalize

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lawgraph/pkg/graph"
	"lawgraph/pkg/graph/metrics"
	"lawgraph/pkg/graph/storage"
)

const (
	defaultWorkers          = 4
	defaultFailureTolerance = 0.2
)

// Options tune a normalization run.
type Options struct {
	// Workers bounds the number of records processed concurrently.
	Workers int

	// FailureTolerance is the fraction of records allowed to fail before the
	// run itself is reported as failed. Nil means the default of 0.2; point
	// it at zero to fail the run on any failed record. Failed records are
	// always skipped, never retried within the run.
	FailureTolerance *float64

	// Since restricts the run to raw records fetched at or after this time.
	// Zero means full history.
	Since time.Time
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.FailureTolerance == nil {
		tolerance := defaultFailureTolerance
		o.FailureTolerance = &tolerance
	}
	return o
}

// Result summarizes a normalization run.
type Result struct {
	RecordsRead  int
	NodesWritten int
	EdgesWritten int
	EdgesSkipped int
	Failures     int
}

func (r *Result) add(other Result) {
	r.RecordsRead += other.RecordsRead
	r.NodesWritten += other.NodesWritten
	r.EdgesWritten += other.EdgesWritten
	r.EdgesSkipped += other.EdgesSkipped
	r.Failures += other.Failures
}

// Pipeline drains raw source records through a set of mappers and writes the
// mapped nodes and edges to the store. Runs are idempotent: replaying the
// same records converges on the same graph.
type Pipeline struct {
	store   storage.Store
	mappers []Mapper
	logger  *logrus.Logger
	opts    Options
}

// NewPipeline assembles a pipeline over the given mappers.
func NewPipeline(store storage.Store, mappers []Mapper, logger *logrus.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Pipeline{
		store:   store,
		mappers: mappers,
		logger:  logger,
		opts:    opts.withDefaults(),
	}
}

// Run processes every mapper in order. Within one mapper the records fan out
// over a bounded worker pool; a failing record is logged and skipped so one
// malformed payload cannot sink the run. Run returns an error when the
// failure fraction exceeds the tolerance.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.WithLabelValues("normalize").Observe(time.Since(started).Seconds())
	}()

	var total Result
	for _, mapper := range p.mappers {
		result, err := p.runMapper(ctx, mapper)
		total.add(result)
		if err != nil {
			return total, err
		}
	}

	if total.RecordsRead > 0 {
		tolerance := *p.opts.FailureTolerance
		failureRate := float64(total.Failures) / float64(total.RecordsRead)
		if failureRate > tolerance {
			return total, errors.Errorf(
				"normalization failure rate %.2f exceeds tolerance %.2f (%d of %d records)",
				failureRate, tolerance, total.Failures, total.RecordsRead)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"records":       total.RecordsRead,
		"nodes_written": total.NodesWritten,
		"edges_written": total.EdgesWritten,
		"edges_skipped": total.EdgesSkipped,
		"failures":      total.Failures,
	}).Info("Normalization run completed")

	return total, nil
}

func (p *Pipeline) runMapper(ctx context.Context, mapper Mapper) (Result, error) {
	records, err := p.store.RawSources(ctx, mapper.Source(), mapper.Kinds(), p.opts.Since)
	if err != nil {
		return Result{}, errors.Wrapf(err, "fetch raw sources for %s", mapper.Source())
	}

	p.logger.WithFields(logrus.Fields{
		"source":  mapper.Source(),
		"records": len(records),
	}).Info("Normalizing raw source records")

	var (
		mu     sync.Mutex
		result = Result{RecordsRead: len(records)}
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.Workers)

	for _, record := range records {
		record := record
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			partial, err := p.processRecord(groupCtx, mapper, record)
			mu.Lock()
			defer mu.Unlock()
			result.add(partial)
			if err != nil {
				// Skip and continue. Cancellation is the only error that
				// stops the pool.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				result.Failures++
				metrics.RecordFailures.WithLabelValues(mapper.Source()).Inc()
				p.logger.WithFields(logrus.Fields{
					"source":      record.Source,
					"kind":        record.Kind,
					"external_id": record.ExternalID,
				}).WithError(err).Warn("Skipping raw record")
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) processRecord(ctx context.Context, mapper Mapper, record graph.RawSource) (Result, error) {
	var result Result

	nodes, err := mapper.MapNodes(record)
	if err != nil {
		return result, errors.Wrap(err, "map nodes")
	}
	for _, node := range nodes {
		if _, err := p.store.UpsertNode(ctx, node); err != nil {
			return result, errors.Wrapf(err, "upsert %s node", node.Type)
		}
		result.NodesWritten++
	}

	edges, err := mapper.MapEdges(record, nodes)
	if err != nil {
		return result, errors.Wrap(err, "map edges")
	}
	for _, edge := range edges {
		_, err := p.store.UpsertEdge(ctx, edge)
		switch {
		case err == nil:
			result.EdgesWritten++
		case graph.IsDanglingReference(err):
			// A referenced endpoint was not normalized in this run, for
			// example a publication pointing at an unseen procedure. The
			// edge shows up on a later replay once the endpoint exists.
			result.EdgesSkipped++
			metrics.EdgesSkipped.Inc()
			p.logger.WithFields(logrus.Fields{
				"from":     edge.FromKey,
				"to":       edge.ToKey,
				"relation": edge.Relation,
			}).WithError(err).Debug("Skipping edge with missing endpoint")
		default:
			return result, errors.Wrapf(err, "upsert %s edge", edge.Relation)
		}
	}

	return result, nil
}
