package workflow

import "github.com/stockassistant/orchestrator/internal/models"

// Template bundles a named Definition with its recommended execution
// mode and a suggested cron schedule, mirroring
// original_source/.../app/services/workflow_definitions.py's
// WORKFLOW_TEMPLATES registry.
type Template struct {
	Name            string
	Description     string
	Definition      Definition
	ExecutionMode   models.ExecutionMode
	DefaultSchedule string
}

// Templates is the five workflow templates this system ships,
// looked up by name from createFromTemplate.
var Templates = map[string]Template{
	"price_monitoring": {
		Name:        "Price Monitoring",
		Description: "Monitor price alerts and trigger notifications",
		Definition: Definition{
			Nodes: []Node{
				{ID: "start", Type: NodeAgent, Agent: "price_alert", IsEntry: true, IsFinish: true},
			},
		},
		ExecutionMode:   models.ExecutionParallel,
		DefaultSchedule: "*/5 * * * *",
	},
	"research": {
		Name:        "Portfolio Research",
		Description: "Gather news and analysis for portfolio stocks",
		Definition: Definition{
			Nodes: []Node{
				{ID: "research", Type: NodeAgent, Agent: "research", IsEntry: true, IsFinish: true},
			},
		},
		ExecutionMode:   models.ExecutionSequential,
		DefaultSchedule: "0 9 * * *",
	},
	"rebalancing": {
		Name:        "Portfolio Rebalancing",
		Description: "Analyze portfolio composition and suggest rebalancing",
		Definition: Definition{
			Nodes: []Node{
				{ID: "rebalancing", Type: NodeAgent, Agent: "rebalancing", IsEntry: true, IsFinish: true},
			},
		},
		ExecutionMode:   models.ExecutionSequential,
		DefaultSchedule: "0 10 * * 1",
	},
	"comprehensive_analysis": {
		Name:        "Comprehensive Analysis",
		Description: "Sequential research and rebalancing analysis",
		Definition: Definition{
			Nodes: []Node{
				{ID: "research", Type: NodeAgent, Agent: "research", IsEntry: true},
				{ID: "rebalancing", Type: NodeAgent, Agent: "rebalancing", IsFinish: true},
			},
			Edges: []Edge{
				{From: "research", To: "rebalancing"},
			},
		},
		ExecutionMode:   models.ExecutionSequential,
		DefaultSchedule: "0 9 * * 1",
	},
	"parallel_monitoring": {
		Name:        "Parallel Monitoring",
		Description: "Run all monitoring tasks in parallel",
		Definition: Definition{
			Nodes: []Node{
				{ID: "start", Type: NodeCondition, IsEntry: true},
				{ID: "price_alerts", Type: NodeAgent, Agent: "price_alert"},
				{ID: "research", Type: NodeAgent, Agent: "research"},
				{ID: "rebalancing", Type: NodeAgent, Agent: "rebalancing"},
				{ID: "end", Type: NodeCondition, IsFinish: true},
			},
			Edges: []Edge{
				{From: "start", To: "price_alerts"},
				{From: "start", To: "research"},
				{From: "start", To: "rebalancing"},
				{From: "price_alerts", To: "end"},
				{From: "research", To: "end"},
				{From: "rebalancing", To: "end"},
			},
		},
		ExecutionMode:   models.ExecutionParallel,
		DefaultSchedule: "0 */6 * * *",
	},
}

// TemplateByName looks up a template, returning ok=false for an
// unknown name (original_source raises ValueError; this package
// reports absence the Go way and lets the caller decide how to fail).
func TemplateByName(name string) (Template, bool) {
	t, ok := Templates[name]
	return t, ok
}
