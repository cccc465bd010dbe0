package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ammobase/harvester/pkg/types"
)

// Variance buckets, closed on the left: a 25% delta lands in "25-50%".
var varianceBuckets = []struct {
	limit float64
	label string
}{
	{10, "0-10%"},
	{25, "10-25%"},
	{50, "25-50%"},
	{100, "50-100%"},
}

// VarianceBucket returns the label for an absolute percentage delta.
func VarianceBucket(deltaPct float64) string {
	if deltaPct < 0 {
		deltaPct = -deltaPct
	}
	for _, b := range varianceBuckets {
		if deltaPct < b.limit {
			return b.label
		}
	}
	return ">100%"
}

// Variance records price-variance observations. Large swings usually mean a
// corrupted upstream (wrong currency, shifted decimal point), so exceedances
// get their own counter for alerting.
type Variance struct {
	observed metric.Int64Counter
	exceeded metric.Int64Counter
}

// NewVariance creates the variance instruments on the global meter provider.
func NewVariance() (*Variance, error) {
	meter := otel.Meter("github.com/ammobase/harvester")

	observed, err := meter.Int64Counter("harvester.price_variance.observed",
		metric.WithDescription("Price changes observed, by variance bucket"))
	if err != nil {
		return nil, err
	}
	exceeded, err := meter.Int64Counter("harvester.price_variance.exceeded",
		metric.WithDescription("Price changes whose variance exceeded the configured threshold"))
	if err != nil {
		return nil, err
	}
	return &Variance{observed: observed, exceeded: exceeded}, nil
}

// Observe records one price change. thresholdPct is the configured
// exceedance threshold; deltaPct may be negative for drops.
func (v *Variance) Observe(ctx context.Context, deltaPct, thresholdPct float64, kind types.SourceKind, disposition types.VarianceDisposition) {
	if v == nil {
		return
	}
	bucket := VarianceBucket(deltaPct)
	attrs := metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("source_kind", string(kind)),
		attribute.String("disposition", string(disposition)),
	)
	v.observed.Add(ctx, 1, attrs)

	abs := deltaPct
	if abs < 0 {
		abs = -abs
	}
	if abs > thresholdPct {
		v.exceeded.Add(ctx, 1, attrs)
	}
}
