package jobs

import "strategiq-backend/internal/report"

func seedReport() *report.Report {
	return &report.Report{
		PrimaryEntity: "Acme",
		Entries: map[report.Category][]string{
			report.Strength:    {"a", "b"},
			report.Weakness:    {"a", "b"},
			report.Opportunity: {"a", "b"},
			report.Threat:      {"a", "b"},
		},
		Summary: "seed summary",
	}
}
