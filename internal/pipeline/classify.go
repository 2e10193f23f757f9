package pipeline

import (
	"context"
	"fmt"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

// keywordEntry maps a vertical to its trigger keywords. Table order is
// the tie-break: when two verticals score equally, the earlier entry
// wins, so ordering must stay stable.
type keywordEntry struct {
	vertical types.Vertical
	keywords []string
}

var verticalKeywords = []keywordEntry{
	{types.VerticalHealthcare, []string{
		"hospital", "health", "medical", "pharma", "biotech", "healthcare",
		"clinic", "therapeutic", "diagnostics", "patient", "medicine",
	}},
	{types.VerticalFinance, []string{
		"bank", "insurance", "investment", "financial", "fintech", "capital",
		"asset management", "wealth", "trading", "securities",
	}},
	{types.VerticalRetail, []string{
		"retail", "store", "ecommerce", "e-commerce", "consumer", "shop",
		"marketplace", "wholesale", "department store",
	}},
	{types.VerticalManufacturing, []string{
		"manufacturing", "factory", "industrial", "production", "assembly",
		"machinery", "equipment", "fabrication",
	}},
	{types.VerticalTechnology, []string{
		"software", "saas", "cloud", "tech", "digital", "platform", "app",
		"data", "analytics", "ai", "machine learning", "cybersecurity",
	}},
	{types.VerticalEnergy, []string{
		"energy", "oil", "gas", "utility", "power", "renewable", "solar",
		"wind", "electric", "petroleum",
	}},
	{types.VerticalTelecommunications, []string{
		"telecom", "wireless", "mobile", "network", "broadband", "internet",
		"cable", "satellite", "5g", "communications",
	}},
	{types.VerticalMediaEntertainment, []string{
		"media", "entertainment", "gaming", "streaming", "publishing",
		"broadcast", "film", "music", "news", "advertising",
	}},
	{types.VerticalTransportation, []string{
		"transport", "logistics", "shipping", "airline", "automotive",
		"freight", "delivery", "trucking", "rail", "aviation",
	}},
	{types.VerticalRealEstate, []string{
		"real estate", "property", "realty", "housing", "commercial property",
		"residential", "leasing",
	}},
	{types.VerticalProfessionalServices, []string{
		"consulting", "advisory", "legal", "accounting", "audit", "law firm",
		"professional services", "management consulting",
	}},
	{types.VerticalEducation, []string{
		"education", "university", "school", "learning", "training",
		"academic", "edtech", "college", "curriculum",
	}},
	{types.VerticalGovernment, []string{
		"government", "federal", "municipal", "public sector",
		"agency", "defense", "military",
	}},
	{types.VerticalHospitality, []string{
		"hotel", "hospitality", "restaurant", "travel", "tourism",
		"resort", "lodging", "food service", "cruise",
	}},
	{types.VerticalAgriculture, []string{
		"agriculture", "farming", "agri", "crop", "livestock", "agtech",
		"agricultural",
	}},
	{types.VerticalConstruction, []string{
		"construction", "building", "engineering", "infrastructure",
		"contractor", "architecture",
	}},
	{types.VerticalNonprofit, []string{
		"nonprofit", "non-profit", "charity", "foundation", "ngo",
	}},
}

// classifyByKeywords scores each vertical by keyword match count over
// the text. Returns VerticalOther with ok=false when nothing matches.
func classifyByKeywords(text string) (types.Vertical, bool) {
	text = strings.ToLower(text)

	best := types.VerticalOther
	bestScore := 0
	for _, entry := range verticalKeywords {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		// strictly greater keeps the first-registered winner on ties
		if score > bestScore {
			best = entry.vertical
			bestScore = score
		}
	}
	return best, bestScore > 0
}

const classifySystemPrompt = `You classify companies into industry verticals. Respond with ONLY the vertical name, nothing else.`

// runClassify assigns an industry vertical. Keyword matching is tried
// first; the model is consulted only when no keyword matches. Unknown
// model output maps to other.
func runClassify(ctx context.Context, sc *StageContext) error {
	text := sc.Job.ClientName
	if sc.Report != nil {
		text += " " + sc.Report.CompanyOverview
	}

	if v, ok := classifyByKeywords(text); ok {
		sc.Vertical = v
		logging.Stage("classify: %q -> %s (keywords)", sc.Job.ClientName, v)
		return nil
	}

	overview := ""
	if sc.Report != nil {
		overview = sc.Report.CompanyOverview
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nOverview: %s\n\nAvailable verticals:\n", sc.Job.ClientName, overview)
	for _, v := range types.AllVerticals {
		fmt.Fprintf(&b, "- %s\n", v)
	}

	raw, err := sc.Gateway.Complete(ctx, classifySystemPrompt, b.String())
	if err != nil {
		return err
	}
	sc.Vertical = types.ParseVertical(raw)
	logging.Stage("classify: %q -> %s (model)", sc.Job.ClientName, sc.Vertical)
	return nil
}
