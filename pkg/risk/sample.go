// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package risk

import "time"

// Sample is a demonstration data set.
type Sample struct {
	Projects []Project
	Risks    []Risk
	Signals  []MarketSignal
}

// SampleData returns three projects with their risks and four market
// signals. Project timelines are placed around now so health indicators are
// meaningful.
func SampleData(now time.Time) Sample {
	day := func(offset int) string {
		return now.AddDate(0, 0, offset).Format(dateLayout)
	}

	projects := []Project{
		{
			ID:                   "p1001",
			Name:                 "Cloud Migration",
			Description:          "Migrate on-premises infrastructure to cloud services",
			Status:               "In Progress",
			StartDate:            day(-120),
			EndDate:              day(76),
			Budget:               500000,
			Spent:                290000,
			TeamSize:             12,
			Client:               "InternaCorp",
			Industry:             "Finance",
			CompletionPercentage: 55,
			ResourceUtilization:  0.88,
		},
		{
			ID:                   "p1002",
			Name:                 "Mobile Banking App",
			Description:          "Develop a new mobile banking application with enhanced security",
			Status:               "Planning",
			StartDate:            day(-30),
			EndDate:              day(259),
			Budget:               750000,
			Spent:                60000,
			TeamSize:             8,
			Client:               "SecureBank",
			Industry:             "Banking",
			CompletionPercentage: 10,
			ResourceUtilization:  0.72,
		},
		{
			ID:                   "p1003",
			Name:                 "Data Center Upgrade",
			Description:          "Upgrade existing data center infrastructure and improve reliability",
			Status:               "In Progress",
			StartDate:            day(-150),
			EndDate:              day(51),
			Budget:               1200000,
			Spent:                910000,
			TeamSize:             15,
			Client:               "TechGlobal",
			Industry:             "Technology",
			CompletionPercentage: 62,
			ResourceUtilization:  0.97,
		},
	}

	r := func(id, project, title, desc, cat string, p, i float64, mitigation string) Risk {
		return Risk{
			ID:          id,
			ProjectID:   project,
			Title:       title,
			Description: desc,
			Category:    cat,
			Probability: p,
			Impact:      i,
			Status:      StatusActive,
			Mitigations: []string{mitigation},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	risks := []Risk{
		r("r2001", "p1001", "Data Security Breach", "Potential security vulnerabilities during data migration",
			"Security", 0.3, 0.9, "Implement end-to-end encryption and conduct security audits before, during, and after migration."),
		r("r2002", "p1001", "Budget Overrun", "Project expenses exceeding the allocated budget",
			"Budget", 0.6, 0.7, "Implement strict cost controls and weekly budget reviews."),
		r("r2003", "p1001", "Service Disruption", "Temporary service unavailability during migration",
			"Technical", 0.8, 0.5, "Plan for off-hours migration windows and implement redundant systems."),
		r("r2004", "p1002", "Regulatory Compliance Issues", "Failure to meet financial regulations for mobile banking",
			"Regulatory", 0.4, 0.9, "Engage compliance experts and conduct regular regulatory reviews."),
		r("r2005", "p1002", "Technical Skill Shortage", "Lack of specialized mobile security expertise",
			"Resource", 0.7, 0.6, "Allocate budget for hiring contractors or training existing staff."),
		r("r2006", "p1003", "Hardware Delivery Delays", "Delayed delivery of critical infrastructure components",
			"Schedule", 0.5, 0.7, "Order hardware with buffer time and identify alternative suppliers."),
		r("r2007", "p1003", "Power System Failure", "Inadequate power infrastructure for new equipment",
			"Technical", 0.3, 0.8, "Conduct power assessment and upgrade power systems before equipment installation."),
		r("r2008", "p1003", "Staff Resistance", "IT operations staff resistant to new technologies",
			"Communication", 0.6, 0.4, "Implement change management plan with training and regular communication."),
	}

	signals := []MarketSignal{
		{
			ID:        "m3001",
			Type:      SignalIndustryTrend,
			Timestamp: now,
			Summary:   "Cloud services pricing decreased by 15% on average",
			Details:   "Major cloud providers announced price reductions for enterprise customers. This trend could benefit cloud migration projects by reducing ongoing operational costs.",
			Source:    "Cloud Industry Report",
		},
		{
			ID:        "m3002",
			Type:      SignalEconomicIndicator,
			Timestamp: now,
			Summary:   "Interest rates increased by 0.5%",
			Details:   "Central bank raised interest rates, which may impact project financing costs and capital expenditure decisions for IT projects.",
			Source:    "Financial Times",
		},
		{
			ID:        "m3003",
			Type:      SignalTechnologyTrend,
			Timestamp: now,
			Summary:   "Mobile banking adoption increased by 35% year-over-year",
			Details:   "Consumer adoption of mobile banking apps continues to accelerate, expanding the potential market but also increasing security concerns and regulatory scrutiny.",
			Source:    "Banking Technology Survey",
		},
		{
			ID:        "m3004",
			Type:      SignalSecurityAlert,
			Timestamp: now,
			Summary:   "New vulnerability discovered in common cloud security protocol",
			Details:   "Security researchers identified a critical vulnerability affecting data encryption during cloud migrations. Patches are being developed but haven't been released yet.",
			Source:    "Cybersecurity Alert Network",
		},
	}

	return Sample{Projects: projects, Risks: risks, Signals: signals}
}
