package cost

import "testing"

func TestLookupKnownModel(t *testing.T) {
	p := Lookup("claude-3-5-sonnet-20241022")
	want := table["claude-3-5-sonnet"]
	if p != want {
		t.Fatalf("Lookup with date suffix = %+v, want %+v", p, want)
	}
}

func TestLookupUnknownModelFallsBackToDefault(t *testing.T) {
	p := Lookup("some-future-model-nobody-has-heard-of")
	if p != table[defaultModel] {
		t.Fatalf("Lookup for unknown model = %+v, want default pricing", p)
	}
}

func TestEstimate(t *testing.T) {
	got := Estimate("claude-3-5-sonnet", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	want := 3.00 + 15.00
	if got != want {
		t.Fatalf("Estimate = %v, want %v", got, want)
	}
}

func TestEstimateCacheTokensDiscounted(t *testing.T) {
	base := Estimate("claude-3-5-sonnet", Usage{})
	withCache := Estimate("claude-3-5-sonnet", Usage{CacheCreationTokens: 1_000_000})
	got := withCache - base
	want := 3.00 * 0.25
	if got != want {
		t.Fatalf("cache-token delta = %v, want %v", got, want)
	}
}

func TestFormatCost(t *testing.T) {
	cases := []struct {
		usd  float64
		want string
	}{
		{0.0012, "$0.0012"},
		{0.0099, "$0.0099"},
		{0.01, "$0.01"},
		{1.5, "$1.50"},
	}
	for _, c := range cases {
		if got := FormatCost(c.usd); got != c.want {
			t.Errorf("FormatCost(%v) = %q, want %q", c.usd, got, c.want)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{500, "500"},
		{1500, "1.5K"},
		{2_000_000, "2M"},
	}
	for _, c := range cases {
		if got := FormatTokens(c.n); got != c.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}
