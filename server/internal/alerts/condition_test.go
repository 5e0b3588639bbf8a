package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandlens/brandlens/pkg/types"
)

func snap(cur, prev float64) types.MetricSnapshot {
	return types.MetricSnapshot{Current: cur, Previous: prev}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		snap      types.MetricSnapshot
		cond      types.ConditionKind
		threshold float64
		want      bool
	}{
		{"above fires", snap(11, 0), types.ConditionAbove, 10, true},
		{"above is strict", snap(10, 0), types.ConditionAbove, 10, false},
		{"below fires", snap(-0.1, 0), types.ConditionBelow, 0, true},
		{"below is strict", snap(0, 0), types.ConditionBelow, 0, false},
		{"equals within tolerance", snap(5.0004, 0), types.ConditionEquals, 5, true},
		{"equals outside tolerance", snap(5.002, 0), types.ConditionEquals, 5, false},
		{"equals exact", snap(0, 0), types.ConditionEquals, 0, true},
		{"changes_by growth", snap(130, 100), types.ConditionChangesBy, 30, true},
		{"changes_by drop", snap(70, 100), types.ConditionChangesBy, 30, true},
		{"changes_by under threshold", snap(129, 100), types.ConditionChangesBy, 30, false},
		{"changes_by zero baseline growth", snap(3, 0), types.ConditionChangesBy, 100, true},
		{"changes_by zero baseline flat", snap(0, 0), types.ConditionChangesBy, 0.5, false},
		{"changes_by zero threshold always fires", snap(0, 0), types.ConditionChangesBy, 0, true},
		{"changes_by negative baseline", snap(-50, -100), types.ConditionChangesBy, 50, true},
		{"unknown condition", snap(100, 0), types.ConditionKind("crosses"), 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.snap, tc.cond, tc.threshold))
		})
	}
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 50.0, PercentChange(snap(150, 100)))
	assert.Equal(t, -25.0, PercentChange(snap(75, 100)))
	assert.Equal(t, 100.0, PercentChange(snap(0.01, 0)))
	assert.Equal(t, 0.0, PercentChange(snap(0, 0)))
	assert.Equal(t, 0.0, PercentChange(snap(-4, 0)), "negative current over zero baseline")
	assert.Equal(t, 50.0, PercentChange(snap(-50, -100)))
}

func TestEvaluate_Deterministic(t *testing.T) {
	s := snap(120, 100)
	first := Evaluate(s, types.ConditionChangesBy, 20)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Evaluate(s, types.ConditionChangesBy, 20))
	}
}
