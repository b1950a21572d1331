package weather

import (
	"fmt"
	"sort"
	"time"
)

// BucketMode decides which readings merge into one bucket.
type BucketMode string

const (
	BucketRaw     BucketMode = "raw"
	BucketDaily   BucketMode = "daily"
	BucketWeekly  BucketMode = "weekly"
	BucketMonthly BucketMode = "monthly"
)

// LabelFormat decides how a raw-mode bucket's representative timestamp is rendered.
type LabelFormat string

const (
	Label5Min  LabelFormat = "5min"
	LabelDay   LabelFormat = "day"
	LabelWeek  LabelFormat = "week"
	LabelMonth LabelFormat = "month"
)

// Granularity is the display granularity a chart asks for.
type Granularity string

const (
	GranularityRaw     Granularity = "raw"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

type granularityRule struct {
	bucket BucketMode
	label  LabelFormat
}

var granularityRules = map[Granularity]granularityRule{
	GranularityRaw:     {bucket: BucketRaw, label: Label5Min},
	GranularityDaily:   {bucket: BucketDaily, label: LabelDay},
	GranularityWeekly:  {bucket: BucketWeekly, label: LabelWeek},
	GranularityMonthly: {bucket: BucketMonthly, label: LabelMonth},
}

// ParseGranularity resolves a display granularity token.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if _, ok := granularityRules[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
	return g, nil
}

// Rule returns the bucket mode and label format a granularity maps to.
func (g Granularity) Rule() (BucketMode, LabelFormat, error) {
	rule, ok := granularityRules[g]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownGranularity, g)
	}
	return rule.bucket, rule.label, nil
}

// ParseBucketMode resolves a bucket mode token.
func ParseBucketMode(s string) (BucketMode, error) {
	switch m := BucketMode(s); m {
	case BucketRaw, BucketDaily, BucketWeekly, BucketMonthly:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBucketMode, s)
	}
}

// ParseLabelFormat resolves a label format token.
func ParseLabelFormat(s string) (LabelFormat, error) {
	switch f := LabelFormat(s); f {
	case Label5Min, LabelDay, LabelWeek, LabelMonth:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLabelFormat, s)
	}
}

// Bucket is a transient group of readings sharing a key.
type Bucket struct {
	Key      string
	Readings []Reading
}

// Series is the chart-ready output of an aggregation.
// Samples[i] counts the finite values that went into Series[i]; zero means no data.
type Series struct {
	Labels  []string  `json:"labels"`
	Series  []float64 `json:"series"`
	Avg     float64   `json:"avg"`
	Samples []int     `json:"samples"`
}

// WeekOfMonth is the within-month week ordinal ceil(day/7), 1 to 5.
// It is not an ISO week and restarts every month.
func WeekOfMonth(ts time.Time) int {
	return (ts.Day() + 6) / 7
}

func weekKey(ts time.Time) string {
	return fmt.Sprintf("%04d-W%02d", ts.Year(), WeekOfMonth(ts))
}

func bucketKey(ts time.Time, mode BucketMode) string {
	switch mode {
	case BucketDaily:
		return ts.Format("2006-01-02")
	case BucketWeekly:
		return weekKey(ts)
	case BucketMonthly:
		return ts.Format("2006-01")
	default:
		return ts.Format(time.RFC3339Nano)
	}
}

// GroupByGranularity splits readings into buckets ordered by the timestamp of
// their first member. Readings without a valid timestamp are dropped.
func GroupByGranularity(readings []Reading, mode BucketMode) ([]Bucket, error) {
	if _, err := ParseBucketMode(string(mode)); err != nil {
		return nil, err
	}

	buckets := make([]Bucket, 0)
	index := make(map[string]int)

	for _, r := range readings {
		if !r.HasTimestamp() {
			continue
		}
		key := bucketKey(r.Timestamp, mode)

		if mode == BucketRaw {
			buckets = append(buckets, Bucket{Key: key, Readings: []Reading{r}})
			continue
		}

		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key})
		}
		buckets[i].Readings = append(buckets[i].Readings, r)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Readings[0].Timestamp.Before(buckets[j].Readings[0].Timestamp)
	})

	return buckets, nil
}

// ReduceMetric reduces the finite values of metric across readings.
// An empty value set reduces to 0.
func ReduceMetric(readings []Reading, metric Metric, reducer Reducer) (float64, error) {
	if _, err := ParseReducer(string(reducer)); err != nil {
		return 0, err
	}
	v, _ := reduceBucket(readings, metric, reducer)
	return v, nil
}

func reduceBucket(readings []Reading, metric Metric, reducer Reducer) (float64, int) {
	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		if v, ok := r.Value(metric); ok {
			values = append(values, v)
		}
	}
	return reduceValues(values, reducer)
}

func reduceValues(values []float64, reducer Reducer) (float64, int) {
	var sum float64
	n := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	if reducer == ReducerSum {
		return sum, n
	}
	return sum / float64(n), n
}

// FormatLabel renders ts according to f.
func FormatLabel(ts time.Time, f LabelFormat) string {
	switch f {
	case Label5Min:
		return ts.Format("Jan 2, 15:04")
	case LabelWeek:
		return weekKey(ts)
	case LabelMonth:
		return ts.Format("2006-01")
	default:
		return ts.Format("2006-01-02")
	}
}

// BuildSeries aggregates readings for one metric at a display granularity,
// using the metric's own reducer.
func BuildSeries(readings []Reading, g Granularity, metric Metric) (Series, error) {
	mode, label, err := g.Rule()
	if err != nil {
		return Series{}, err
	}
	if !metric.Valid() {
		return Series{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return BuildSeriesWith(readings, label, mode, metric, metric.Meta().Reducer)
}

// BuildSeriesWith is the fully parameterized form of BuildSeries. The label
// format only affects raw-mode buckets; grouped buckets are labeled by key.
func BuildSeriesWith(readings []Reading, label LabelFormat, mode BucketMode, metric Metric, reducer Reducer) (Series, error) {
	if _, err := ParseLabelFormat(string(label)); err != nil {
		return Series{}, err
	}
	if _, err := ParseReducer(string(reducer)); err != nil {
		return Series{}, err
	}
	if !metric.Valid() {
		return Series{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	buckets, err := GroupByGranularity(readings, mode)
	if err != nil {
		return Series{}, err
	}

	out := Series{
		Labels:  make([]string, 0, len(buckets)),
		Series:  make([]float64, 0, len(buckets)),
		Samples: make([]int, 0, len(buckets)),
	}

	for _, b := range buckets {
		lbl := b.Key
		if mode == BucketRaw {
			rep := b.Readings[len(b.Readings)/2]
			lbl = FormatLabel(rep.Timestamp, label)
		}
		v, n := reduceBucket(b.Readings, metric, reducer)

		out.Labels = append(out.Labels, lbl)
		out.Series = append(out.Series, v)
		out.Samples = append(out.Samples, n)
	}

	out.Avg, _ = reduceValues(out.Series, ReducerAvg)
	return out, nil
}
