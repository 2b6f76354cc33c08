// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/risk"
)

// signalGroups maps signal types to the keys of the market analysis.
var signalGroups = map[string]string{
	risk.SignalIndustryTrend:      "industry_trends",
	risk.SignalEconomicIndicator:  "economic_indicators",
	risk.SignalTechnologyTrend:    "technology_trends",
	risk.SignalSecurityAlert:      "security_alerts",
	risk.SignalRegulatoryChange:   "regulatory_changes",
	risk.SignalCompetitorActivity: "competitor_activities",
}

type signalBrief struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Details   string `json:"details,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp"`
}

func signal(m risk.MarketSignal) signalBrief {
	return signalBrief{
		ID:        m.ID,
		Summary:   m.Summary,
		Details:   m.Details,
		Source:    m.Source,
		Timestamp: m.Timestamp.Format(risk.TimeLayout),
	}
}

func (r *Registry) marketAnalysisTool() *Tool {
	return New(mcp.NewTool(MarketAnalysis,
		mcp.WithDescription("Analyze market conditions, industry trends and external factors that might impact project risks."),
		projectArg(),
		daysArg(),
	), func(ctx context.Context, args Args) (any, error) {
		days := args.Int(argDays, 30)
		if days <= 0 {
			days = 30
		}
		signals, err := r.repo.RecentMarketData(ctx, days*24, "")
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(signalGroups)+3)
		for _, key := range signalGroups {
			out[key] = []signalBrief{}
		}
		for _, m := range signals {
			key, ok := signalGroups[m.Type]
			if !ok {
				continue
			}
			out[key] = append(out[key].([]signalBrief), signal(m))
		}
		out["signal_count"] = len(signals)
		out["days_back"] = days
		out["market_risk_impact"] = risk.MarketImpact(signals)
		return out, nil
	})
}

func (r *Registry) marketNewsTool() *Tool {
	return New(mcp.NewTool(MarketNews,
		mcp.WithDescription("Search market news and signals related to a topic."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Topic to search for, e.g. 'cloud pricing'")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
	), func(ctx context.Context, args Args) (any, error) {
		found, err := r.repo.QueryMarket(ctx, args.String("query"), args.Int("limit", 5))
		if err != nil {
			return nil, err
		}
		results := make([]map[string]any, 0, len(found))
		for _, m := range found {
			results = append(results, map[string]any{
				"type":   m.Type,
				"signal": signal(m),
			})
		}
		return map[string]any{
			"query":              args.String("query"),
			"results":            results,
			"market_risk_impact": risk.MarketImpact(found),
		}, nil
	})
}
