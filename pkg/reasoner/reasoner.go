package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/autopilot/pkg/controlplane"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

const maxRevisionsInPrompt = 10

// Reasoner turns a health assessment plus platform state into a typed
// remediation recommendation. Recommend is total: model timeouts, upstream
// errors, and unparseable replies all collapse to a NONE recommendation
// with confidence 0.
type Reasoner struct {
	model    ModelClient
	platform controlplane.Client
	now      func() time.Time
}

// New creates a reasoner
func New(model ModelClient, platform controlplane.Client) *Reasoner {
	return &Reasoner{model: model, platform: platform, now: time.Now}
}

// revisionFacts is the platform state gathered before prompting
type revisionFacts struct {
	current      string
	previous     string
	trafficSplit map[string]int
	available    []string
}

// Recommend analyzes health and returns a remediation recommendation.
// It never returns an error to the caller.
func (r *Reasoner) Recommend(ctx context.Context, health types.ServiceHealth) types.Recommendation {
	logger := log.WithService(health.Service, health.Region)

	facts := r.gatherFacts(ctx, health.Service, health.Region)

	prompt := buildPrompt(health, facts)

	start := r.now()
	reply, err := r.model.Complete(ctx, prompt)
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Msg("model call failed, defaulting to no action")
		return safeDefault(fmt.Sprintf("analysis failed: %v", err), r.now())
	}

	rec := r.parse(reply, facts)
	rec.CreatedAt = r.now()
	metrics.RecommendationsTotal.WithLabelValues(string(rec.Action)).Inc()

	logger.Info().
		Str("action", string(rec.Action)).
		Float64("confidence", rec.Confidence).
		Msg("recommendation produced")
	return rec
}

// gatherFacts fetches revision and traffic state; on any failure the prompt
// simply carries unknowns, the analysis still runs.
func (r *Reasoner) gatherFacts(ctx context.Context, service, region string) revisionFacts {
	facts := revisionFacts{current: "unknown", trafficSplit: map[string]int{}}

	info, err := r.platform.GetService(ctx, service, region)
	if err != nil {
		logger := log.WithService(service, region)
		logger.Warn().Err(err).Msg("could not fetch revision info")
		return facts
	}

	facts.current = info.LatestRevision
	facts.trafficSplit = info.TrafficSplit
	for i, rev := range info.Revisions {
		if i == maxRevisionsInPrompt {
			break
		}
		facts.available = append(facts.available, rev.Name)
	}
	facts.previous = previousStable(info)
	return facts
}

// previousStable derives the rollback target: the revision carrying
// non-zero traffic that is not the latest, else the second entry of the
// newest-first revision list when one exists.
func previousStable(info *controlplane.ServiceInfo) string {
	for _, rev := range info.Revisions {
		if rev.Name != info.LatestRevision && info.TrafficSplit[rev.Name] > 0 {
			return rev.Name
		}
	}
	if len(info.Revisions) > 1 {
		return info.Revisions[1].Name
	}
	return ""
}

// modelReply mirrors the JSON object the prompt demands
type modelReply struct {
	Action         string  `json:"action"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	RiskAssessment string  `json:"risk_assessment"`
	ExpectedImpact string  `json:"expected_impact"`
	RootCause      string  `json:"root_cause_hypothesis"`
}

func (r *Reasoner) parse(reply string, facts revisionFacts) types.Recommendation {
	text := stripFences(reply)

	var parsed modelReply
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		log.Logger.Warn().Err(err).Msg("unparseable model reply, defaulting to no action")
		return safeDefault(fmt.Sprintf("failed to parse recommendation: %v", err), r.now())
	}

	action, known := types.IsKnownAction(strings.ToUpper(strings.TrimSpace(parsed.Action)))
	if !known {
		action = types.ActionNone
	}

	rec := types.Recommendation{
		Action:         action,
		Confidence:     clamp01(parsed.Confidence),
		Reasoning:      parsed.Reasoning,
		RiskAssessment: parsed.RiskAssessment,
		ExpectedImpact: parsed.ExpectedImpact,
		RootCause:      parsed.RootCause,
	}

	// A rollback is only actionable with a known prior revision
	if rec.Action == types.ActionRollback {
		if facts.previous == "" {
			rec.Action = types.ActionNone
			rec.Reasoning = "rollback recommended but no previous stable revision exists: " + rec.Reasoning
		} else {
			rec.TargetRevision = facts.previous
		}
	}

	return rec
}

// stripFences removes a wrapping markdown code block if present
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func safeDefault(reason string, now time.Time) types.Recommendation {
	return types.Recommendation{
		Action:         types.ActionNone,
		Confidence:     0,
		Reasoning:      reason,
		RiskAssessment: "unable to assess risk",
		ExpectedImpact: "no action will be taken",
		CreatedAt:      now,
	}
}
