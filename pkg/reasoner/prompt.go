package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/autopilot/pkg/types"
)

const maxLogsInPrompt = 5

// buildPrompt assembles the deterministic analysis prompt: service
// identity, window metrics, revision facts, the top error logs, and the
// allowed action set, ending with a strict-JSON demand.
func buildPrompt(health types.ServiceHealth, facts revisionFacts) string {
	var logLines []string
	for i, sample := range health.LogSamples {
		if i == maxLogsInPrompt {
			break
		}
		msg := sample.Message
		if len(msg) > 200 {
			msg = msg[:200]
		}
		logLines = append(logLines, fmt.Sprintf("[%s] %s", sample.Severity, msg))
	}
	logSummary := strings.Join(logLines, "\n")
	if logSummary == "" {
		logSummary = "No recent error logs"
	}

	latency := "unknown"
	if health.Metrics.LatencyP95 != nil {
		latency = fmt.Sprintf("%.0fms", *health.Metrics.LatencyP95)
	}

	trafficJSON, _ := json.MarshalIndent(facts.trafficSplit, "", "  ")

	previous := facts.previous
	if previous == "" {
		previous = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert Site Reliability Engineer (SRE) analyzing a managed container service health issue.

SERVICE INFORMATION:
- Service Name: %s
- Region: %s
- Current Status: %s

METRICS (Last scan window):
- Error Rate: %.2f%%
- Request Count: %d
- Failed Requests: %d
- Successful Requests: %d
- Latency P95: %s

REVISION INFORMATION:
- Current Revision: %s
- Traffic Split: %s
- Available Revisions: %s
- Previous Stable Revision: %s

RECENT ERROR LOGS:
%s

ANOMALY DETECTED:
%s

AVAILABLE ACTIONS:
1. ROLLBACK - Route 100%% traffic to previous stable revision
2. SCALE_UP - Increase min/max instance counts
3. SCALE_DOWN - Decrease instance counts (if over-provisioned)
4. REDEPLOY - Trigger new build and deployment
5. NONE - Take no action (not serious enough)

YOUR TASK:
Analyze the situation and recommend the best remediation action. Consider:
- Severity of the issue (is it critical?)
- Likely root cause based on metrics and logs
- Risk vs benefit of each action
- Confidence in your recommendation

Respond in this EXACT JSON format:
{
  "action": "ROLLBACK|SCALE_UP|SCALE_DOWN|REDEPLOY|NONE",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation of why you chose this action",
  "risk_assessment": "What could go wrong with this action",
  "expected_impact": "What should happen after this action",
  "root_cause_hypothesis": "Your best guess at what caused this issue"
}

Be decisive but conservative. If uncertain, choose NONE and explain why more investigation is needed.
`,
		health.Service,
		health.Region,
		strings.ToUpper(string(health.Status)),
		health.Metrics.ErrorRate,
		health.Metrics.RequestCount,
		health.Metrics.ErrorCount,
		health.Metrics.SuccessCount,
		latency,
		facts.current,
		string(trafficJSON),
		strings.Join(facts.available, ", "),
		previous,
		logSummary,
		health.AnomalySummary,
	)
	return b.String()
}

// Explain generates a short post-incident summary in plain language.
// Unlike Recommend this surfaces errors: the caller decides what a missing
// explanation means.
func (r *Reasoner) Explain(ctx context.Context, incident *types.Incident) (string, error) {
	ended := "ongoing"
	if incident.ResolvedAt != nil {
		ended = incident.ResolvedAt.Format("2006-01-02 15:04:05 MST")
	}

	action, reasoning := "None", "N/A"
	if incident.Recommendation != nil {
		action = string(incident.Recommendation.Action)
		reasoning = incident.Recommendation.Reasoning
	}

	result := "Pending"
	if incident.ActionResult != nil {
		if incident.ActionResult.Success {
			result = "Succeeded"
		} else {
			result = "Failed"
		}
	}

	prompt := fmt.Sprintf(`You are writing a post-incident report for a managed container service issue.

INCIDENT DETAILS:
- Service: %s
- Duration: %s to %s
- Error Rate: %.2f%%
- Requests Affected: %d out of %d

ANOMALY:
%s

ACTION TAKEN:
%s - %s

RESULT:
%s

Write a brief, clear explanation in plain English (2-3 sentences) suitable for:
1. Engineering team (technical but concise)
2. Non-technical stakeholders (what happened, what was done, outcome)

Focus on:
- What went wrong
- Why it happened (best hypothesis)
- What was done to fix it
- Next steps or learnings
`,
		incident.Service,
		incident.DetectedAt.Format("2006-01-02 15:04:05 MST"),
		ended,
		incident.Metrics.ErrorRate,
		incident.Metrics.ErrorCount,
		incident.Metrics.RequestCount,
		incident.AnomalySummary,
		action,
		reasoning,
		result,
	)

	reply, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("explanation generation failed: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
