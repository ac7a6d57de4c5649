// Package cost implements the per-model token pricing table and cost
// calculator. Within this module its caller is the transcript index
// (internal/transcript). No pack repository implements anything resembling a pricing
// table -- this is new, derived directly from §4.N's formula rather than
// grounded on a teacher file.
package cost

import (
	"fmt"
	"regexp"
	"strings"
)

// Pricing is the per-million-token rate for one model, in USD.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultModel is used for any model name not found in the table, per
// §4.N: "Unknown models default to a specified mid-tier model's pricing."
const defaultModel = "claude-3-5-sonnet"

// table is keyed by model name with any trailing date suffix already
// stripped (see normalizeModel).
var table = map[string]Pricing{
	"claude-opus-4":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-opus":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-3-haiku":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":           {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"o1":                {InputPerMillion: 15.00, OutputPerMillion: 60.00},
	"o3-mini":           {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	"gemini-1.5-pro":    {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"gemini-1.5-flash":  {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"gemini-2.0-flash":  {InputPerMillion: 0.10, OutputPerMillion: 0.40},
}

// isoDateSuffix matches a trailing "-YYYY-MM-DD" version suffix.
var isoDateSuffix = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

// normalizeModel lowercases model and strips a trailing "-YYYYMMDD" or
// "-YYYY-MM-DD" style version suffix so "claude-3-5-sonnet-20241022" maps
// to the same pricing row as "claude-3-5-sonnet".
func normalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	model = isoDateSuffix.ReplaceAllString(model, "")
	parts := strings.Split(model, "-")
	for len(parts) > 0 {
		last := parts[len(parts)-1]
		if len(last) >= 6 && isDigits(last) {
			parts = parts[:len(parts)-1]
			continue
		}
		break
	}
	return strings.Join(parts, "-")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Lookup returns the pricing row for model, falling back to the default
// mid-tier model's pricing when the model is unrecognised.
func Lookup(model string) Pricing {
	if p, ok := table[normalizeModel(model)]; ok {
		return p
	}
	return table[defaultModel]
}

// Usage is one token-accounting delta to price.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// Estimate computes the USD cost of usage under model's pricing, per
// §4.N's formula: cache tokens are priced at the input rate, discounted
// 75% (i.e. charged at a quarter of the input rate), reflecting that
// cache writes/reads are cheaper than a full input token.
func Estimate(model string, usage Usage) float64 {
	p := Lookup(model)
	cost := float64(usage.InputTokens) * p.InputPerMillion / 1e6
	cost += float64(usage.OutputTokens) * p.OutputPerMillion / 1e6
	cost += float64(usage.CacheCreationTokens+usage.CacheReadTokens) * p.InputPerMillion / 1e6 * 0.25
	return cost
}

// FormatCost renders a USD amount with 4 decimals below one cent and 2
// decimals otherwise, per §4.N.
func FormatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

// FormatTokens condenses a token count with K/M suffixes, per §4.N.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1fM", float64(n)/1_000_000))
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1fK", float64(n)/1_000))
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string {
	s = strings.Replace(s, ".0K", "K", 1)
	s = strings.Replace(s, ".0M", "M", 1)
	return s
}
