package agents

import (
	"context"
	"fmt"
)

const (
	newsTool      = "news"
	sentimentTool = "sentiment"
	summarizeTool = "summarize"
)

// HeadlineDeduper filters out headlines already delivered to a given
// scope (typically ticker), satisfied by
// internal/cache.SeenHeadlines.MarkAndCheck. Optional: a nil deduper
// means every headline is treated as fresh.
type HeadlineDeduper interface {
	MarkAndCheck(ctx context.Context, scope, headline string) bool
}

type newsArticle struct {
	Headline    string `json:"headline"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
}

type sentimentResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewResearchAgent builds the research agent: for each ticker named in
// state.Context["tickers"] it fetches news + sentiment + an opaque
// "summarize" tool result (the LLM call spec.md section 1 treats as a
// remote capability, not something this repo prompts directly).
// Grounded on original_source's ResearchAgent, adapted to the
// state.Context["tickers"] contract SPEC_FULL.md section 4.7 names.
func NewResearchAgent(tools ToolCaller, dedupe HeadlineDeduper) Func {
	return func(ctx context.Context, state State) State {
		state.CurrentNode = "research"
		rawTickers, _ := state.Context["tickers"].([]string)
		if len(rawTickers) == 0 {
			state.Errors = append(state.Errors, "research agent error: tickers not provided in context")
			return state
		}

		perTicker := make(map[string]any, len(rawTickers))
		for _, ticker := range rawTickers {
			summary, err := researchTicker(ctx, tools, dedupe, ticker)
			if err != nil {
				state.Errors = append(state.Errors, fmt.Sprintf("research agent: %s failed: %v", ticker, err))
				continue
			}
			perTicker[ticker] = summary
		}

		if state.Results == nil {
			state.Results = map[string]any{}
		}
		state.Results["research"] = perTicker
		return state
	}
}

func researchTicker(ctx context.Context, tools ToolCaller, dedupe HeadlineDeduper, ticker string) (map[string]any, error) {
	var articles []newsArticle
	if err := tools.CallTool(ctx, newsTool, map[string]any{"symbol": ticker, "limit": 10}, &articles); err != nil {
		return nil, fmt.Errorf("news: %w", err)
	}

	fresh := make([]newsArticle, 0, len(articles))
	for _, a := range articles {
		if dedupe == nil {
			fresh = append(fresh, a)
			continue
		}
		if alreadySeen := dedupe.MarkAndCheck(ctx, ticker, a.Headline); !alreadySeen {
			fresh = append(fresh, a)
		}
	}

	if len(fresh) == 0 {
		return map[string]any{
			"headlines": []newsArticle{},
			"sentiment": "neutral",
			"summary":   "No new headlines since the last check",
		}, nil
	}

	var sentiment sentimentResult
	if err := tools.CallTool(ctx, sentimentTool, map[string]any{"symbol": ticker}, &sentiment); err != nil {
		return nil, fmt.Errorf("sentiment: %w", err)
	}

	var summarized struct {
		Summary string `json:"summary"`
	}
	if err := tools.CallTool(ctx, summarizeTool, map[string]any{"symbol": ticker, "articles": fresh}, &summarized); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	return map[string]any{
		"headlines": fresh,
		"sentiment": sentiment.Label,
		"summary":   summarized.Summary,
	}, nil
}
