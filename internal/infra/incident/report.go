package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

// ─── Response Planning ──────────────────────────────────────────────────────

// PlanResponse builds the investigation and recovery strategy for an
// incident, prioritized by SEV tier.
func PlanResponse(inc *domain.Incident, dataExposure bool) domain.ResponsePlan {
	plan := domain.ResponsePlan{
		IncidentID: inc.ID,
		Severity:   inc.Severity,
		RecoverySteps: []string{
			"Eradicate threat from all systems",
			"Verify threat removal",
			"Restore systems from clean backups",
			"Monitor for re-compromise",
		},
	}

	switch inc.Severity {
	case domain.Sev1:
		plan.InvestigationPriorities = []string{
			"Determine attack vector",
			"Identify affected systems",
			"Assess data exposure",
			"Locate attacker",
		}
	case domain.Sev2:
		plan.InvestigationPriorities = []string{
			"Determine threat scope",
			"Collect forensic evidence",
			"Assess impact",
		}
	default:
		plan.InvestigationPriorities = []string{
			"Confirm threat",
			"Basic investigation",
		}
	}

	if dataExposure {
		plan.EvidencePriorities = []domain.ForensicType{
			domain.ForensicFileHash,
			domain.ForensicNetworkLogs,
		}
	} else {
		plan.EvidencePriorities = []domain.ForensicType{domain.ForensicProcessLogs}
	}

	if inc.Severity == domain.Sev1 || inc.Severity == domain.Sev2 {
		plan.ContainmentStrategy = "Isolate affected systems immediately, preserve evidence"
	} else {
		plan.ContainmentStrategy = "Enhanced monitoring and rate limiting"
	}
	return plan
}

// ─── Post-Mortems ───────────────────────────────────────────────────────────

// GeneratePostMortem builds the closing report of a resolved incident.
func GeneratePostMortem(inc *domain.Incident, evidence []domain.ForensicEvidence, now time.Time) domain.PostMortem {
	resolvedAt := inc.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = now
	}
	containedAt := inc.ContainedAt
	if containedAt.IsZero() {
		containedAt = resolvedAt
	}

	byType := make(map[string]int)
	for _, ev := range evidence {
		byType[string(ev.Type)]++
	}

	rootCause := inc.RootCause
	if rootCause == "" {
		rootCause = "Under investigation"
	}

	return domain.PostMortem{
		IncidentID: inc.ID,
		Title:      "Post-Mortem: " + inc.Title,
		Severity:   inc.Severity,
		CreatedAt:  now,
		Timeline: []domain.TimelineEntry{
			{Time: inc.DetectedAt, Event: "Threat detected"},
			{Time: inc.CreatedAt, Event: "Incident created and investigation started"},
			{Time: containedAt, Event: "Threat contained"},
			{Time: resolvedAt, Event: "Incident resolved"},
		},
		ExecutiveSummary: executiveSummary(inc, resolvedAt),
		RootCause:        rootCause,
		SystemsAffected:  len(inc.AffectedSystems),
		UsersAffected:    len(inc.AffectedUsers),
		EvidenceByType:   byType,
		LessonsLearned:   inc.LessonsLearned,
		Recommendations:  recommendations(inc),
	}
}

func executiveSummary(inc *domain.Incident, resolvedAt time.Time) string {
	duration := resolvedAt.Sub(inc.DetectedAt)
	var b strings.Builder
	fmt.Fprintf(&b, "A %s security incident was detected and contained in %.0f minutes. ",
		inc.Severity, duration.Minutes())
	fmt.Fprintf(&b, "%d systems and %d users were impacted.",
		len(inc.AffectedSystems), len(inc.AffectedUsers))
	return b.String()
}

func recommendations(inc *domain.Incident) []string {
	recs := []string{
		"Review and update security policies",
		"Conduct security awareness training",
		"Improve monitoring and alerting capabilities",
	}
	if inc.Severity == domain.Sev1 || inc.Severity == domain.Sev2 {
		recs = append(recs,
			"Conduct comprehensive security audit",
			"Implement zero-trust architecture",
		)
	}
	return recs
}
