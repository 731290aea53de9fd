package analysis

import (
	"fmt"

	"github.com/nao1215/fisgon/internal/model"
)

// RiskAssessment is a capped score, its label and the factors behind it.
type RiskAssessment struct {
	Score   float64         `json:"overall_score"`
	Level   model.RiskLevel `json:"level"`
	Factors []RiskFactor    `json:"identified_risks"`
}

// RiskFactor is one contribution to a risk score.
type RiskFactor struct {
	Type           string  `json:"type"`
	Level          float64 `json:"level"`
	Description    string  `json:"description"`
	AffectedItems  int     `json:"affected_items"`
	Recommendation string  `json:"recommendation"`
}

// Risk factor types.
const (
	RiskOutdatedSoftware = "outdated_software"
	RiskUserExposure     = "user_exposure"
	RiskCorporateInfo    = "corporate_info_exposure"
	RiskLocation         = "location_exposure"
	RiskPersonalInfo     = "personal_info_exposure"
)

func assessSecurity(sw SoftwareAnalysis, authors AuthorsAnalysis) RiskAssessment {
	var factors []RiskFactor
	if n := len(sw.OutdatedSoftware); n > 0 {
		factors = append(factors, RiskFactor{
			Type:           RiskOutdatedSoftware,
			Level:          min(2*float64(n), 10),
			Description:    fmt.Sprintf("%d outdated software tools detected", n),
			AffectedItems:  n,
			Recommendation: "Update the tools that produce published documents to avoid known vulnerabilities",
		})
	}
	if n := len(authors.EmailAddresses); n > 0 {
		factors = append(factors, RiskFactor{
			Type:           RiskUserExposure,
			Level:          min(float64(n), 8),
			Description:    fmt.Sprintf("%d email addresses found in metadata", n),
			AffectedItems:  n,
			Recommendation: "Configure authoring tools not to embed personal information in metadata",
		})
	}
	if n := len(authors.CorporatePatterns); n > 0 {
		factors = append(factors, RiskFactor{
			Type:           RiskCorporateInfo,
			Level:          min(1.5*float64(n), 6),
			Description:    fmt.Sprintf("%d corporate naming patterns detected", n),
			AffectedItems:  n,
			Recommendation: "Review corporate document templates and default account names",
		})
	}
	return newAssessment(factors)
}

func assessPrivacy(loc LocationAnalysis, authors AuthorsAnalysis) RiskAssessment {
	var factors []RiskFactor
	if n := loc.TotalFilesWithGPS; n > 0 {
		factors = append(factors, RiskFactor{
			Type:           RiskLocation,
			Level:          min(2*float64(n), 10),
			Description:    fmt.Sprintf("%d files contain GPS coordinates", n),
			AffectedItems:  n,
			Recommendation: "Strip EXIF metadata before publishing images",
		})
	}
	if n := authors.TotalUniqueAuthors; n > 0 {
		factors = append(factors, RiskFactor{
			Type:           RiskPersonalInfo,
			Level:          min(0.5*float64(n), 5),
			Description:    fmt.Sprintf("%d unique authors identified in the documents", n),
			AffectedItems:  n,
			Recommendation: "Use generic accounts to author public documents",
		})
	}
	return newAssessment(factors)
}

func newAssessment(factors []RiskFactor) RiskAssessment {
	var sum float64
	for _, f := range factors {
		sum += f.Level
	}
	score := min(sum, model.MaxRiskScore)
	return RiskAssessment{
		Score:   score,
		Level:   model.RiskLevelForScore(score),
		Factors: factors,
	}
}
