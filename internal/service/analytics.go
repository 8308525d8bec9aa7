package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
	TrendDecreasing = "decreasing"

	DefaultFrequentThreshold = 3
	defaultAnalyticsWindow   = 30 * 24 * time.Hour
)

type ItemStats struct {
	Count   int      `json:"count"`
	Reasons []string `json:"reasons"`
	Trend   string   `json:"trend"`
}

type FrequentIssue struct {
	ItemID           string `json:"item_id"`
	Count            int    `json:"count"`
	MostCommonReason string `json:"most_common_reason"`
	Recommendation   string `json:"recommendation"`
}

type Analytics struct {
	KitID          string               `json:"kit_id"`
	Start          time.Time            `json:"start_date"`
	End            time.Time            `json:"end_date"`
	TotalOverrides int                  `json:"total_overrides"`
	ByItem         map[string]ItemStats `json:"by_item"`
	ByTechnician   map[string]int       `json:"by_technician"`
	FrequentIssues []FrequentIssue      `json:"frequent_issues"`
	SLAMetRate     float64              `json:"sla_met_rate"`
	AvgLatencyMs   float64              `json:"avg_latency_ms"`
}

// OverrideAnalytics aggregates historical override logs for one kit.
type OverrideAnalytics struct {
	Store     ports.OverrideStore
	Threshold int

	now func() time.Time
}

func NewOverrideAnalytics(store ports.OverrideStore, threshold int) *OverrideAnalytics {
	if threshold <= 0 {
		threshold = DefaultFrequentThreshold
	}
	return &OverrideAnalytics{Store: store, Threshold: threshold, now: time.Now}
}

// GetOverrideAnalytics covers overrides created in [start, end). A zero end
// means now and a zero start means thirty days before end.
func (a *OverrideAnalytics) GetOverrideAnalytics(ctx context.Context, tenantID, kitID string, start, end time.Time) (Analytics, error) {
	if kitID == "" {
		return Analytics{}, apperr.Invalid("kit_id", "is required")
	}
	if end.IsZero() {
		end = a.now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-defaultAnalyticsWindow)
	}
	if !end.After(start) {
		return Analytics{}, apperr.Invalid("end_date", "must be after start_date")
	}

	logs, err := a.Store.ListOverrideLogs(ctx, ports.OverrideQuery{TenantID: tenantID, KitID: kitID, Start: start, End: end})
	if err != nil {
		return Analytics{}, err
	}
	return aggregate(kitID, start, end, logs, a.Threshold), nil
}

type itemAcc struct {
	count   int
	first   int
	second  int
	reasons map[string]int
	order   []string
}

func aggregate(kitID string, start, end time.Time, logs []models.OverrideLog, threshold int) Analytics {
	out := Analytics{
		KitID:          kitID,
		Start:          start,
		End:            end,
		ByItem:         map[string]ItemStats{},
		ByTechnician:   map[string]int{},
		FrequentIssues: []FrequentIssue{},
	}
	if len(logs) == 0 {
		return out
	}

	mid := start.Add(end.Sub(start) / 2)
	items := map[string]*itemAcc{}
	var (
		slaMet     int
		resolved   int
		latencySum int64
	)
	for _, l := range logs {
		out.TotalOverrides++
		out.ByTechnician[l.TechnicianID]++

		acc, ok := items[l.ItemID]
		if !ok {
			acc = &itemAcc{reasons: map[string]int{}}
			items[l.ItemID] = acc
		}
		acc.count++
		if l.CreatedAt.Before(mid) {
			acc.first++
		} else {
			acc.second++
		}
		if _, seen := acc.reasons[l.OverrideReason]; !seen {
			acc.order = append(acc.order, l.OverrideReason)
		}
		acc.reasons[l.OverrideReason]++

		if l.ResolvedAt != nil {
			resolved++
			latencySum += l.LatencyMs
			if l.SLAMet {
				slaMet++
			}
		}
	}
	if resolved > 0 {
		out.SLAMetRate = float64(slaMet) / float64(resolved)
		out.AvgLatencyMs = float64(latencySum) / float64(resolved)
	}

	for itemID, acc := range items {
		out.ByItem[itemID] = ItemStats{
			Count:   acc.count,
			Reasons: acc.order,
			Trend:   trend(acc.first, acc.second),
		}
		if acc.count >= threshold {
			reason := mostCommon(acc.reasons)
			out.FrequentIssues = append(out.FrequentIssues, FrequentIssue{
				ItemID:           itemID,
				Count:            acc.count,
				MostCommonReason: reason,
				Recommendation:   Recommendation(reason),
			})
		}
	}
	sort.Slice(out.FrequentIssues, func(i, j int) bool {
		if out.FrequentIssues[i].Count != out.FrequentIssues[j].Count {
			return out.FrequentIssues[i].Count > out.FrequentIssues[j].Count
		}
		return out.FrequentIssues[i].ItemID < out.FrequentIssues[j].ItemID
	})
	return out
}

func trend(first, second int) string {
	switch {
	case second > first:
		return TrendIncreasing
	case second < first:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// mostCommon breaks ties by the lexically smallest reason.
func mostCommon(reasons map[string]int) string {
	best, bestN := "", -1
	for r, n := range reasons {
		if n > bestN || (n == bestN && r < best) {
			best, bestN = r, n
		}
	}
	return best
}

var recommendationRules = []struct {
	keywords []string
	advice   string
}{
	{[]string{"broken", "damaged", "malfunction", "faulty"}, "Review equipment maintenance schedule"},
	{[]string{"lost", "missing", "stolen"}, "Review inventory tracking and check-out procedures"},
	{[]string{"forgot", "left"}, "Add item to pre-departure checklist"},
}

// Recommendation maps a recurring override reason to a standing action.
func Recommendation(reason string) string {
	lower := strings.ToLower(reason)
	for _, rule := range recommendationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.advice
			}
		}
	}
	return "Consider making item optional or adjusting kit composition"
}
