package trials

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
)

func completed(index int, absReturn float64) domain.TrialRecord {
	return domain.TrialRecord{
		TrialIndex:            index,
		Status:                domain.TrialCompleted,
		InitialPortfolioValue: 100,
		FinalPortfolioValue:   100 + absReturn,
		AbsoluteReturn:        absReturn,
		RelativeReturn:        absReturn / 100,
		Objective:             absReturn,
	}
}

func indexes(records []domain.TrialRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.TrialIndex
	}
	return out
}

func TestAggregator_RankingTieBreak(t *testing.T) {
	agg := NewAggregator()
	for i, v := range []float64{5, -3, 5, 10} {
		require.NoError(t, agg.Add(completed(i, v)))
	}

	ranked, err := agg.Ranked(MetricAbsoluteReturn)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 2, 1}, indexes(ranked))

	best := agg.Best()
	require.NotNil(t, best)
	assert.Equal(t, 3, best.TrialIndex)
}

func TestAggregator_FailedSinkToBottom(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Add(domain.FailedTrial("s", 0, nil, errors.New("boom"))))
	require.NoError(t, agg.Add(completed(1, -50)))
	require.NoError(t, agg.Add(completed(2, 1)))

	ranked, err := agg.Ranked("")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, indexes(ranked))
	assert.Equal(t, 1, agg.Failed())
}

func TestAggregator_AllFailedHasNoBest(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Add(domain.FailedTrial("s", 0, nil, errors.New("a"))))
	require.NoError(t, agg.Add(domain.FailedTrial("s", 1, nil, errors.New("b"))))

	assert.Nil(t, agg.Best())
	assert.Nil(t, NewAggregator().Best())
}

func TestAggregator_DuplicateIndex(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Add(completed(0, 1)))
	require.ErrorIs(t, agg.Add(completed(0, 2)), ErrDuplicateTrial)
	assert.Equal(t, 1, agg.Len())
}

func TestAggregator_MetricDirections(t *testing.T) {
	s1, s2 := 0.5, 1.5
	recs := []domain.TrialRecord{
		{TrialIndex: 0, Status: domain.TrialCompleted, MaxDrawdown: 12, SharpeRatio: &s1, SystemQualityNumber: 2},
		{TrialIndex: 1, Status: domain.TrialCompleted, MaxDrawdown: 3, SharpeRatio: nil, SystemQualityNumber: 1},
		{TrialIndex: 2, Status: domain.TrialCompleted, MaxDrawdown: 7, SharpeRatio: &s2, SystemQualityNumber: 3},
	}
	agg := NewAggregator()
	for _, r := range recs {
		require.NoError(t, agg.Add(r))
	}

	tests := []struct {
		metric Metric
		want   []int
	}{
		{MetricMaxDrawdown, []int{1, 2, 0}},
		{MetricSharpeRatio, []int{2, 0, 1}},
		{MetricSQN, []int{2, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			ranked, err := agg.Ranked(tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indexes(ranked))
		})
	}

	_, err := agg.Ranked("win_rate")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestAggregator_ConcurrentAdd(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = agg.Add(completed(i, float64(i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, agg.Len())
	assert.Equal(t, 99, agg.Best().TrialIndex)
}

func TestAggregator_RecordsAreCopies(t *testing.T) {
	agg := NewAggregator()
	rec := completed(0, 1)
	rec.Parameters = domain.Assignment{"sma_period": domain.IntValue(5)}
	sharpe := 1.5
	rec.SharpeRatio = &sharpe
	rec.Bars = []domain.Bar{{Close: 100}}
	require.NoError(t, agg.Add(rec))

	rec.Parameters["sma_period"] = domain.IntValue(50)
	*rec.SharpeRatio = 2
	rec.Bars[0].Close = 200

	got := agg.Records()
	got[0].Parameters["sma_period"] = domain.IntValue(70)
	*got[0].SharpeRatio = -99
	got[0].Bars[0].Close = -1

	best := agg.Best()
	require.NotNil(t, best)
	*best.SharpeRatio = -7
	best.Bars[0].Close = -7

	stored := agg.Records()[0]
	assert.Equal(t, int64(5), stored.Parameters["sma_period"].Int())
	require.NotNil(t, stored.SharpeRatio)
	assert.Equal(t, 1.5, *stored.SharpeRatio)
	assert.Equal(t, 100.0, stored.Bars[0].Close)
}

func TestAggregator_Table(t *testing.T) {
	agg := NewAggregator()
	r0 := completed(0, 2.5)
	r0.Parameters = domain.Assignment{"b": domain.IntValue(1), "a": domain.FloatValue(0.5)}
	require.NoError(t, agg.Add(r0))
	require.NoError(t, agg.Add(domain.FailedTrial("s", 1, domain.Assignment{"c": domain.CategoricalValue("x")}, errors.New("bad feed"))))

	table := agg.Table()
	assert.Equal(t, []string{
		"trial", "status", "param_a", "param_b", "param_c",
		"initial_value", "final_value", "absolute_return", "relative_return",
		"sharpe_ratio", "max_drawdown", "sqn", "trades", "error",
	}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"0", "completed", "0.5", "1", ""}, table.Rows[0][:5])
	assert.Equal(t, "2.500000", table.Rows[0][7])
	assert.Equal(t, "", table.Rows[0][9])
	assert.Equal(t, "bad feed", table.Rows[1][13])
	assert.Equal(t, "x", table.Rows[1][4])
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricAbsoluteReturn, m)

	m, err = ParseMetric("sqn")
	require.NoError(t, err)
	assert.Equal(t, MetricSQN, m)
}
