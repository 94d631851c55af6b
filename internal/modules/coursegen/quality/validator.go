package quality

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/observability"
	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

const (
	DefaultThreshold = 0.75
	// longer inputs are embedded in windows of this many runes and averaged
	defaultMaxEmbedRunes = 24_000
	embedBatchSize       = 16
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Options struct {
	// Threshold in (0, 1]; zero selects DefaultThreshold.
	Threshold float64
	Debug     bool
}

func (o Options) threshold() (float64, error) {
	if o.Threshold == 0 {
		return DefaultThreshold, nil
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidThreshold, o.Threshold)
	}
	return o.Threshold, nil
}

type Pair struct {
	Original string
	Summary  string
}

type Validator struct {
	log           *logger.Logger
	embedder      Embedder
	metrics       *observability.Metrics
	concurrency   int
	maxEmbedRunes int
}

func NewValidator(log *logger.Logger, embedder Embedder, metrics *observability.Metrics, concurrency int) *Validator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Validator{
		log:           log.With("component", "QualityValidator"),
		embedder:      embedder,
		metrics:       metrics,
		concurrency:   concurrency,
		maxEmbedRunes: defaultMaxEmbedRunes,
	}
}

// ValidateSummary embeds both texts and scores their cosine similarity against the threshold.
func (v *Validator) ValidateSummary(ctx context.Context, original, summary string, opts Options) (*types.QualityCheckResult, error) {
	if strings.TrimSpace(original) == "" || strings.TrimSpace(summary) == "" {
		return nil, ErrEmptyInput
	}
	threshold, err := opts.threshold()
	if err != nil {
		return nil, err
	}

	var origVec, sumVec []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := v.embedOne(gctx, original)
		origVec = vec
		return err
	})
	g.Go(func() error {
		vec, err := v.embedOne(gctx, summary)
		sumVec = vec
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	score, err := CosineSimilarity(origVec, sumVec)
	if err != nil {
		return nil, err
	}
	origLen := utf8.RuneCountInString(original)
	sumLen := utf8.RuneCountInString(summary)
	res := &types.QualityCheckResult{
		Score:            score,
		Threshold:        threshold,
		Passed:           score >= threshold,
		OriginalLength:   origLen,
		SummaryLength:    sumLen,
		CompressionRatio: float64(sumLen) / float64(origLen),
	}
	v.metrics.ObserveQuality(score, res.Passed)
	if opts.Debug {
		v.log.Debug("Summary quality check",
			"score", score,
			"threshold", threshold,
			"passed", res.Passed,
			"original_length", origLen,
			"summary_length", sumLen,
			"compression_ratio", res.CompressionRatio,
			"original_norm", norm(origVec),
			"summary_norm", norm(sumVec),
			"dimensions", len(origVec),
		)
	}
	return res, nil
}

// BatchValidate validates pairs concurrently. Results keep input order; the
// first failure cancels the rest and is returned.
func (v *Validator) BatchValidate(ctx context.Context, pairs []Pair, opts Options) ([]*types.QualityCheckResult, error) {
	if _, err := opts.threshold(); err != nil {
		return nil, err
	}
	out := make([]*types.QualityCheckResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			res, err := v.ValidateSummary(gctx, p.Original, p.Summary, opts)
			if err != nil {
				return fmt.Errorf("pair %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

/*
embedOne returns one vector for text. Text longer than maxEmbedRunes is split
into windows that are embedded in batches and combined as the mean of the
window vectors weighted by rune count, so the whole text contributes.
*/
func (v *Validator) embedOne(ctx context.Context, text string) ([]float32, error) {
	windows := splitRunes(text, v.maxEmbedRunes)
	if len(windows) > 1 {
		v.log.Debug("Embedding long input in windows", "runes", utf8.RuneCountInString(text), "windows", len(windows), "window_runes", v.maxEmbedRunes)
	}
	vecs := make([][]float32, 0, len(windows))
	for start := 0; start < len(windows); start += embedBatchSize {
		batch := windows[start:min(start+embedBatchSize, len(windows))]
		got, err := v.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, types.NewProviderError("embeddings", "embed", err)
		}
		if len(got) != len(batch) {
			return nil, types.NewProviderError("embeddings", "embed", fmt.Errorf("expected %d vectors, got %d", len(batch), len(got)))
		}
		vecs = append(vecs, got...)
	}
	if len(vecs) == 1 {
		return vecs[0], nil
	}

	dim := len(vecs[0])
	sum := make([]float64, dim)
	total := 0.0
	for i, vec := range vecs {
		if len(vec) != dim {
			return nil, types.NewProviderError("embeddings", "embed", fmt.Errorf("%w: window %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vec), dim))
		}
		w := float64(utf8.RuneCountInString(windows[i]))
		for j, x := range vec {
			sum[j] += w * float64(x)
		}
		total += w
	}
	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out, nil
}

// splitRunes cuts s into consecutive pieces of at most size runes.
func splitRunes(s string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	r := []rune(s)
	out := make([]string, 0, len(r)/size+1)
	for start := 0; start < len(r); start += size {
		out = append(out, string(r[start:min(start+size, len(r))]))
	}
	return out
}
