/*
Package reasoner classifies anomalies and proposes remediations via a
generative model.

The reasoner is the decide stage of the pipeline. It packages a health
assessment plus platform facts (current revision, traffic split, derived
previous stable revision) into a deterministic prompt, calls the model
single-turn at low temperature, and parses the strict-JSON reply into a
typed Recommendation.

# Parsing Rules

 1. A wrapping markdown code fence is stripped if present.
 2. Any JSON parse failure collapses to NONE with confidence 0.
 3. The action is matched by uppercased membership in the known set;
    unknown actions become NONE.
 4. ROLLBACK gets the derived previous stable revision injected as the
    target; with no prior revision it is downgraded to NONE.
 5. Confidence is clamped to [0, 1].

The previous stable revision is the revision carrying non-zero traffic
that is not the latest, else the second entry of the newest-first
revision list when one exists.

# Failure Semantics

Recommend is a total function: model timeouts, upstream errors, and
malformed replies all produce a safe-default NONE recommendation. Explain
(post-incident summaries) surfaces errors instead, since a missing
explanation is not a safety concern.
*/
package reasoner
