// Package report aggregates hourly metrics into per-campaign performance
// summaries and exports them as CSV, XLSX or Google Sheets.
package report

import (
	"math"
)

// ClickRate is the assumed share of clicks that become sessions, used to
// estimate clicks.
const ClickRate = 0.15

// CampaignPerformance is one campaign's hierarchy and summed metrics.
type CampaignPerformance struct {
	CampaignID        int64   `json:"campaign_id" db:"campaign_id"`
	CampaignName      string  `json:"campaign_name" db:"campaign_name"`
	Network           string  `json:"network" db:"network"`
	Domain            string  `json:"domain" db:"domain"`
	Placement         string  `json:"placement" db:"placement"`
	Targeting         string  `json:"targeting" db:"targeting"`
	Special           string  `json:"special" db:"special"`
	MappingConfidence float64 `json:"mapping_confidence" db:"mapping_confidence"`

	Sessions         int64 `json:"sessions" db:"sessions"`
	Registrations    int64 `json:"registrations" db:"registrations"`
	CreditCards      int64 `json:"credit_cards" db:"credit_cards"`
	EmailAccounts    int64 `json:"email_accounts" db:"email_accounts"`
	GoogleAccounts   int64 `json:"google_accounts" db:"google_accounts"`
	TotalAccounts    int64 `json:"total_accounts" db:"total_accounts"`
	Messages         int64 `json:"messages" db:"messages"`
	CompanionChats   int64 `json:"companion_chats" db:"companion_chats"`
	TotalUserChats   int64 `json:"total_user_chats" db:"total_user_chats"`
	Media            int64 `json:"media" db:"media"`
	PaymentMethods   int64 `json:"payment_methods" db:"payment_methods"`
	ConvertedUsers   int64 `json:"converted_users" db:"converted_users"`
	TermsAcceptances int64 `json:"terms_acceptances" db:"terms_acceptances"`

	Ratios
	DataQualityScore float64 `json:"data_quality_score" db:"-"`
}

// Ratios are the derived conversion metrics, rounded to two decimals.
type Ratios struct {
	RegPercentage    float64 `json:"reg_percentage" db:"-"`
	CCConvPercentage float64 `json:"cc_conv_percentage" db:"-"`
	ClicksToRegRatio float64 `json:"clicks_to_reg_ratio" db:"-"`
	RegToCCRatio     float64 `json:"reg_to_cc_ratio" db:"-"`
}

// EstimateClicks estimates clicks from sessions at ClickRate.
func EstimateClicks(sessions int64) int64 {
	if sessions <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(sessions) / ClickRate))
}

// ComputeRatios derives the conversion metrics. Any ratio whose
// denominator is zero is 0.
func ComputeRatios(sessions, registrations, creditCards int64) Ratios {
	var r Ratios
	if sessions > 0 {
		r.RegPercentage = round2(float64(registrations) / float64(sessions) * 100)
	}
	if registrations > 0 {
		r.CCConvPercentage = round2(float64(creditCards) / float64(registrations) * 100)
		r.ClicksToRegRatio = round2(float64(EstimateClicks(sessions)) / float64(registrations))
	}
	if creditCards > 0 {
		r.RegToCCRatio = round2(float64(registrations) / float64(creditCards))
	}
	return r
}

// QualityScore rates a campaign's metrics between 0 and 1. Each zero among
// sessions, registrations and credit cards costs 0.2; a registration rate
// above 50% costs 0.3 and one below 0.1% costs 0.2; more registrations than
// sessions costs 0.5.
func QualityScore(sessions, registrations, creditCards int64) float64 {
	score := 1.0
	for _, v := range []int64{sessions, registrations, creditCards} {
		if v == 0 {
			score -= 0.2
		}
	}
	if sessions > 0 {
		rate := float64(registrations) / float64(sessions)
		if rate > 0.5 {
			score -= 0.3
		} else if rate < 0.001 {
			score -= 0.2
		}
	}
	if registrations > sessions {
		score -= 0.5
	}
	return math.Round(math.Max(0, math.Min(1, score))*100) / 100
}

func (p *CampaignPerformance) derive() {
	p.Ratios = ComputeRatios(p.Sessions, p.Registrations, p.CreditCards)
	p.DataQualityScore = QualityScore(p.Sessions, p.Registrations, p.CreditCards)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LowQuality returns the campaigns scoring below threshold.
func LowQuality(rows []CampaignPerformance, threshold float64) []CampaignPerformance {
	var out []CampaignPerformance
	for _, r := range rows {
		if r.DataQualityScore < threshold {
			out = append(out, r)
		}
	}
	return out
}
