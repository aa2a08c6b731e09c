package advisor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateItemPrice(t *testing.T) {
	policy := DefaultItemPolicy()

	tests := []struct {
		name    string
		asked   int
		verdict Verdict
		payable int
		target  int
		savings int
	}{
		{name: "fair", asked: 150, verdict: VerdictFair, payable: 150},
		{name: "at max", asked: 220, verdict: VerdictFair, payable: 220},
		{name: "slightly high", asked: 300, verdict: VerdictSlightlyHigh, target: 220, savings: 80},
		{name: "upper edge of band", asked: 330, verdict: VerdictSlightlyHigh, target: 220, savings: 110},
		{name: "overpriced", asked: 400, verdict: VerdictOverpriced, savings: 180},
		{name: "free", asked: 0, verdict: VerdictFair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateItemPrice(120, 220, tt.asked, policy)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, got.Verdict)
			assert.Equal(t, tt.payable, got.Payable)
			assert.Equal(t, tt.target, got.Target)
			assert.Equal(t, tt.savings, got.Savings)
			assert.Equal(t, tt.asked, got.AskedPrice)
		})
	}
}

func TestEvaluateItemPriceOverpricedReportsRange(t *testing.T) {
	got, err := EvaluateItemPrice(120, 220, 400, DefaultItemPolicy())
	require.NoError(t, err)

	assert.Equal(t, 120, got.MinPrice)
	assert.Equal(t, 220, got.MaxPrice)
	require.NotNil(t, got.Phrase)
	assert.Equal(t, DefaultPhrases[0].English, got.Phrase.English)
}

func TestEvaluateItemPricePhraseRotation(t *testing.T) {
	policy := ItemPolicy{
		HighMultiplier: 1.5,
		Phrases:        []Phrase{{English: "even"}, {English: "odd"}},
	}

	got, err := EvaluateItemPrice(10, 20, 100, policy)
	require.NoError(t, err)
	assert.Equal(t, "even", got.Phrase.English)

	got, err = EvaluateItemPrice(10, 20, 101, policy)
	require.NoError(t, err)
	assert.Equal(t, "odd", got.Phrase.English)
}

func TestEvaluateItemPriceBands(t *testing.T) {
	for _, item := range [][2]int{{120, 220}, {80, 180}, {30, 80}, {800, 1800}, {0, 0}} {
		minPrice, maxPrice := item[0], item[1]
		for asked := 0; asked <= maxPrice*2+10; asked++ {
			got, err := EvaluateItemPrice(minPrice, maxPrice, asked, DefaultItemPolicy())
			require.NoError(t, err)

			switch {
			case asked <= maxPrice:
				assert.Equal(t, VerdictFair, got.Verdict, "asked=%d max=%d", asked, maxPrice)
				assert.Zero(t, got.Savings)
			case float64(asked) <= float64(maxPrice)*1.5:
				assert.Equal(t, VerdictSlightlyHigh, got.Verdict, "asked=%d max=%d", asked, maxPrice)
				assert.Equal(t, maxPrice, got.Target)
			default:
				assert.Equal(t, VerdictOverpriced, got.Verdict, "asked=%d max=%d", asked, maxPrice)
				assert.Equal(t, minPrice, got.MinPrice)
				assert.Equal(t, maxPrice, got.MaxPrice)
			}
		}
	}
}

func TestEvaluateItemPriceRejectsBadInput(t *testing.T) {
	_, err := EvaluateItemPrice(120, 220, -1, DefaultItemPolicy())
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = EvaluateItemPrice(300, 220, 10, DefaultItemPolicy())
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = EvaluateItemPrice(-5, 220, 10, DefaultItemPolicy())
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParsePrice(t *testing.T) {
	got, err := ParsePrice("450")
	require.NoError(t, err)
	assert.Equal(t, 450, got)

	got, err = ParsePrice("007")
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	for _, bad := range []string{"", "12a", "-5", "1.5", " 12", "12 ", "450 DH", "+3", "١٢"} {
		_, err := ParsePrice(bad)
		assert.ErrorIs(t, err, ErrInvalidPrice, "input %q", bad)
	}
}

func TestItemVerdictJSONKeepsZeroValues(t *testing.T) {
	fields := func(v ItemVerdict) map[string]any {
		t.Helper()
		b, err := json.Marshal(v)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	}

	free, err := EvaluateItemPrice(0, 20, 0, DefaultItemPolicy())
	require.NoError(t, err)
	m := fields(free)
	assert.Equal(t, 0.0, m["payable"])
	assert.NotContains(t, m, "target")
	assert.NotContains(t, m, "min_price")

	over, err := EvaluateItemPrice(0, 10, 100, DefaultItemPolicy())
	require.NoError(t, err)
	m = fields(over)
	assert.Equal(t, 0.0, m["min_price"])
	assert.Equal(t, 10.0, m["max_price"])
	assert.Equal(t, 90.0, m["savings"])
	assert.NotContains(t, m, "payable")

	high, err := EvaluateItemPrice(0, 10, 12, DefaultItemPolicy())
	require.NoError(t, err)
	m = fields(high)
	assert.Equal(t, 10.0, m["target"])
	assert.NotContains(t, m, "max_price")
}
