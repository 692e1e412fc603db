package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/constraint"
)

func TestPlanColumnHelpers(t *testing.T) {
	plan := resolve(t, Request{
		Unit:      "transaction",
		Measures:  []string{"value"},
		SegmentBy: []string{"person:seller/geography/name"},
		Where:     constraint.MustNormalize(map[string]any{"ds": "2018-01-01"}),
	})

	assert.Equal(t, []string{"transaction", "ds", "person:seller"}, plan.SegmentColumns())
	assert.Empty(t, plan.PublicSegments(), "the requested segment surfaces two hops away")
	assert.Equal(t, []string{"value"}, plan.MeasureColumns())

	seller := plan.Joins[0].Plan
	assert.Equal(t, []string{"person:seller", "geography", "ds"}, seller.SegmentColumns())

	geo := seller.Joins[0].Plan
	require.Len(t, geo.PublicSegments(), 1)
	assert.Equal(t, "name", geo.PublicSegments()[0].ExposedName())
}

func TestPlanMeasureColumnsFollowJoinPrefixes(t *testing.T) {
	plan := resolve(t, Request{
		Unit:     "person:seller",
		Measures: []string{"transaction/value", "transaction/count"},
		Where:    constraint.MustNormalize(map[string]any{"ds": "2018-01-01"}),
	})
	assert.Equal(t, []string{"transaction/value", "transaction/count"}, plan.MeasureColumns())
	assert.Empty(t, plan.LocalMeasures())
	assert.Equal(t, []string{"value", "count"}, plan.Joins[0].Plan.MeasureColumns())
}

func TestPlanConstrained(t *testing.T) {
	constrained := resolve(t, Request{
		Unit:      "person",
		Measures:  []string{"age"},
		SegmentBy: []string{"name"},
		Where:     constraint.MustNormalize(map[string]any{"ds": "2018-01-01"}),
	})
	assert.True(t, constrained.Constrained())

	free := resolve(t, Request{
		Unit:      "person",
		SegmentBy: []string{"name"},
	})
	assert.False(t, free.Constrained())
}

func TestFingerprintSeparatesRequests(t *testing.T) {
	base := Request{
		Unit:      "person",
		Measures:  []string{"age"},
		SegmentBy: []string{"name"},
		Where:     constraint.MustNormalize(map[string]any{"ds": "2018-01-01"}),
	}
	other := base
	other.Where = constraint.MustNormalize(map[string]any{"ds": "2018-01-02"})

	a := resolve(t, base)
	b := resolve(t, other)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64, "fingerprints are hex-encoded SHA-256")
}
