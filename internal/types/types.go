// Package types holds the shared data model for the research pipeline:
// jobs, projects, iterations, reports and their sub-results.
package types

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a research job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is absorbing.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal,
// monotonic transition. Terminal states accept nothing; pending only
// advances to running; running only advances to a terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Vertical is an industry vertical from the classification taxonomy.
type Vertical string

const (
	VerticalHealthcare           Vertical = "healthcare"
	VerticalFinance              Vertical = "finance"
	VerticalRetail               Vertical = "retail"
	VerticalManufacturing        Vertical = "manufacturing"
	VerticalTechnology           Vertical = "technology"
	VerticalEnergy               Vertical = "energy"
	VerticalTelecommunications   Vertical = "telecommunications"
	VerticalMediaEntertainment   Vertical = "media_entertainment"
	VerticalTransportation       Vertical = "transportation"
	VerticalRealEstate           Vertical = "real_estate"
	VerticalProfessionalServices Vertical = "professional_services"
	VerticalEducation            Vertical = "education"
	VerticalGovernment           Vertical = "government"
	VerticalHospitality          Vertical = "hospitality"
	VerticalAgriculture          Vertical = "agriculture"
	VerticalConstruction         Vertical = "construction"
	VerticalNonprofit            Vertical = "nonprofit"
	VerticalOther                Vertical = "other"
)

// AllVerticals lists every vertical in taxonomy order.
var AllVerticals = []Vertical{
	VerticalHealthcare, VerticalFinance, VerticalRetail,
	VerticalManufacturing, VerticalTechnology, VerticalEnergy,
	VerticalTelecommunications, VerticalMediaEntertainment,
	VerticalTransportation, VerticalRealEstate,
	VerticalProfessionalServices, VerticalEducation, VerticalGovernment,
	VerticalHospitality, VerticalAgriculture, VerticalConstruction,
	VerticalNonprofit, VerticalOther,
}

// ParseVertical validates a raw string against the taxonomy.
// Unknown values map to VerticalOther.
func ParseVertical(raw string) Vertical {
	v := Vertical(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllVerticals {
		if v == known {
			return known
		}
	}
	return VerticalOther
}

// Digital maturity assessment levels.
const (
	MaturityNascent    = "nascent"
	MaturityDeveloping = "developing"
	MaturityMaturing   = "maturing"
	MaturityAdvanced   = "advanced"
	MaturityLeading    = "leading"
)

// AI adoption stages.
const (
	AdoptionExploring     = "exploring"
	AdoptionExperimenting = "experimenting"
	AdoptionImplementing  = "implementing"
	AdoptionScaling       = "scaling"
	AdoptionOptimizing    = "optimizing"
)

// NewsItem is a recent news item about the company.
type NewsItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Date    string `json:"date"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

// DecisionMaker is a key decision maker at the company.
type DecisionMaker struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Background  string `json:"background"`
	LinkedInURL string `json:"linkedin_url"`
}

// Report is the structured output of the deep research stage.
type Report struct {
	CompanyOverview string `json:"company_overview"`
	FoundedYear     int    `json:"founded_year,omitempty"`
	Headquarters    string `json:"headquarters"`
	EmployeeCount   string `json:"employee_count"`
	AnnualRevenue   string `json:"annual_revenue"`
	Website         string `json:"website"`

	RecentNews     []NewsItem      `json:"recent_news"`
	DecisionMakers []DecisionMaker `json:"decision_makers"`

	PainPoints    []string `json:"pain_points"`
	Opportunities []string `json:"opportunities"`

	DigitalMaturity string `json:"digital_maturity"`
	AIFootprint     string `json:"ai_footprint"`
	AIAdoptionStage string `json:"ai_adoption_stage"`

	StrategicGoals []string `json:"strategic_goals"`
	KeyInitiatives []string `json:"key_initiatives"`
	TalkingPoints  []string `json:"talking_points"`
}

// CompetitorCaseStudy is one competitor AI case study found by the scout.
type CompetitorCaseStudy struct {
	CompetitorName   string   `json:"competitor_name"`
	Vertical         string   `json:"vertical"`
	CaseStudyTitle   string   `json:"case_study_title"`
	Summary          string   `json:"summary"`
	TechnologiesUsed []string `json:"technologies_used"`
	Outcomes         []string `json:"outcomes"`
	SourceURL        string   `json:"source_url"`
	RelevanceScore   float64  `json:"relevance_score"`
}

// GapAnalysis is the output of the gap analysis stage.
type GapAnalysis struct {
	TechnologyGaps  []string `json:"technology_gaps"`
	CapabilityGaps  []string `json:"capability_gaps"`
	ProcessGaps     []string `json:"process_gaps"`
	Recommendations []string `json:"recommendations"`
	PriorityAreas   []string `json:"priority_areas"`
	ConfidenceScore float64  `json:"confidence_score"`
	AnalysisNotes   string   `json:"analysis_notes"`
}

// EmployeeSentiment summarizes employee review signals.
type EmployeeSentiment struct {
	Overall string   `json:"overall"`
	Score   float64  `json:"score"`
	Themes  []string `json:"themes"`
}

// LinkedInPresence summarizes the company's LinkedIn activity.
type LinkedInPresence struct {
	Followers     string              `json:"followers"`
	ActivityLevel string              `json:"activity_level"`
	RecentPosts   []map[string]string `json:"recent_posts"`
}

// SocialMediaMention is one social platform discussion of the company.
type SocialMediaMention struct {
	Platform  string `json:"platform"`
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment"`
	Date      string `json:"date"`
}

// JobPostings summarizes the company's open roles.
type JobPostings struct {
	Total         string         `json:"total"`
	Categories    map[string]int `json:"categories"`
	HiringSignals []string       `json:"hiring_signals"`
}

// NewsSentiment summarizes recent press tone.
type NewsSentiment struct {
	Overall string   `json:"overall"`
	Themes  []string `json:"themes"`
}

// InternalOpsIntel is the output of the internal operations stage.
type InternalOpsIntel struct {
	EmployeeSentiment   EmployeeSentiment    `json:"employee_sentiment"`
	LinkedInPresence    LinkedInPresence     `json:"linkedin_presence"`
	SocialMediaMentions []SocialMediaMention `json:"social_media_mentions"`
	JobPostings         JobPostings          `json:"job_postings"`
	NewsSentiment       NewsSentiment        `json:"news_sentiment"`
	KeyInsights         []string             `json:"key_insights"`
	ConfidenceScore     float64              `json:"confidence_score"`
	DataFreshness       string               `json:"data_freshness"`
	AnalysisNotes       string               `json:"analysis_notes"`
}

// UseCasePriority ranks a use case for the accumulator.
type UseCasePriority string

const (
	PriorityHigh   UseCasePriority = "high"
	PriorityMedium UseCasePriority = "medium"
	PriorityLow    UseCasePriority = "low"
)

// Rank returns a sortable rank; lower sorts first.
func (p UseCasePriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// UseCase is an AI use case attached to a job by the ideation layer.
type UseCase struct {
	ID               string          `json:"id"`
	JobID            string          `json:"job_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	BusinessProblem  string          `json:"business_problem"`
	Priority         UseCasePriority `json:"priority"`
	ImpactScore      float64         `json:"impact_score"`
	FeasibilityScore float64         `json:"feasibility_score"`
}

// Job tracks one research run and its accumulated sub-results.
// Created pending; mutated only by the pipeline runner; immutable once
// terminal except that sub-results attach incrementally while running.
type Job struct {
	ID           string    `json:"id"`
	ClientName   string    `json:"client_name"`
	SalesHistory string    `json:"sales_history"`
	Prompt       string    `json:"prompt"`
	Status       JobStatus `json:"status"`
	Vertical     Vertical  `json:"vertical,omitempty"`
	Error        string    `json:"error,omitempty"`

	// Warnings records best-effort stage failures that did not abort the run.
	Warnings []string `json:"warnings,omitempty"`

	Report      *Report               `json:"report,omitempty"`
	CaseStudies []CompetitorCaseStudy `json:"competitor_case_studies,omitempty"`
	GapAnalysis *GapAnalysis          `json:"gap_analysis,omitempty"`
	InternalOps *InternalOpsIntel     `json:"internal_ops,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContextMode controls how iterations within a project build on each other.
type ContextMode string

const (
	ContextAccumulate ContextMode = "accumulate"
	ContextFresh      ContextMode = "fresh"
)

// Project is the top-level engagement wrapper for iterative research.
type Project struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ClientName  string      `json:"client_name"`
	Description string      `json:"description,omitempty"`
	ContextMode ContextMode `json:"context_mode"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Iteration is a single numbered research run within a project.
// Sequence starts at 1 and is unique per project. Status mirrors the
// linked job.
type Iteration struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Sequence       int       `json:"sequence"`
	Name           string    `json:"name,omitempty"`
	SalesHistory   string    `json:"sales_history,omitempty"`
	PromptOverride string    `json:"prompt_override,omitempty"`
	Status         JobStatus `json:"status"`
	JobID          string    `json:"job_id,omitempty"`

	// InheritedContext is present only when the project is in accumulate
	// mode and Sequence > 1.
	InheritedContext *InheritedContext `json:"inherited_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// WorkProductCategory classifies a starred keeper.
type WorkProductCategory string

const (
	CategoryPlay      WorkProductCategory = "play"
	CategoryPersona   WorkProductCategory = "persona"
	CategoryInsight   WorkProductCategory = "insight"
	CategoryOnePager  WorkProductCategory = "one_pager"
	CategoryCaseStudy WorkProductCategory = "case_study"
	CategoryUseCase   WorkProductCategory = "use_case"
	CategoryGap       WorkProductCategory = "gap"
	CategoryOtherWP   WorkProductCategory = "other"
)

// WorkProduct is an item starred as a keeper across iterations.
// The accumulator reads starred products verbatim; otherwise opaque.
type WorkProduct struct {
	ID             string              `json:"id"`
	ProjectID      string              `json:"project_id"`
	SourceSequence int                 `json:"source_sequence,omitempty"`
	Category       WorkProductCategory `json:"category"`
	Title          string              `json:"title"`
	Summary        string              `json:"summary"`
	Starred        bool                `json:"starred"`
	Notes          string              `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Annotation is a free-text note attached to any object. Not consumed
// by the pipeline core.
type Annotation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TargetID  string    `json:"target_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StarredProduct is the verbatim slice of a work product carried into
// inherited context.
type StarredProduct struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// InheritedContext is the deterministic aggregation of prior iterations'
// findings, seeded into the next iteration's research prompt.
type InheritedContext struct {
	IterationCount  int              `json:"iteration_count,omitempty"`
	PainPoints      []string         `json:"pain_points,omitempty"`
	Opportunities   []string         `json:"opportunities,omitempty"`
	TalkingPoints   []string         `json:"talking_points,omitempty"`
	StarredProducts []StarredProduct `json:"starred_products,omitempty"`
	UseCases        []UseCase        `json:"use_cases,omitempty"`
}

// IsEmpty reports whether the context carries nothing.
func (c *InheritedContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.PainPoints) == 0 && len(c.Opportunities) == 0 &&
		len(c.TalkingPoints) == 0 && len(c.StarredProducts) == 0 &&
		len(c.UseCases) == 0
}
