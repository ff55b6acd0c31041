package routing

// ContentType classifies a piece of financial content.
type ContentType string

const (
	ContentEarnings          ContentType = "earnings"
	ContentNews              ContentType = "news"
	ContentMarketData        ContentType = "market_data"
	ContentAnalystRating     ContentType = "analyst_rating"
	ContentEconomicIndicator ContentType = "economic_indicator"
	ContentTechnicalAnalysis ContentType = "technical_analysis"
	ContentUnknown           ContentType = "unknown"
)

// SpecialistID names a specialist analyzer.
type SpecialistID string

const (
	SpecialistEarnings  SpecialistID = "earnings_analyst"
	SpecialistNews      SpecialistID = "news_analyst"
	SpecialistMarket    SpecialistID = "market_analyst"
	SpecialistTechnical SpecialistID = "technical_analyst"
	SpecialistEconomic  SpecialistID = "economic_analyst"
	SpecialistGeneral   SpecialistID = "general_analyst"
)

// ValidContentType reports whether a label is a known content type.
func ValidContentType(label string) bool {
	switch ContentType(label) {
	case ContentEarnings, ContentNews, ContentMarketData, ContentAnalystRating,
		ContentEconomicIndicator, ContentTechnicalAnalysis, ContentUnknown:
		return true
	}
	return false
}

// ValidSpecialist reports whether a label is a known specialist.
func ValidSpecialist(label string) bool {
	switch SpecialistID(label) {
	case SpecialistEarnings, SpecialistNews, SpecialistMarket,
		SpecialistTechnical, SpecialistEconomic, SpecialistGeneral:
		return true
	}
	return false
}

// SpecialistForContent returns the specialist that owns a content type.
func SpecialistForContent(ct ContentType) SpecialistID {
	switch ct {
	case ContentEarnings:
		return SpecialistEarnings
	case ContentNews:
		return SpecialistNews
	case ContentMarketData:
		return SpecialistMarket
	case ContentTechnicalAnalysis:
		return SpecialistTechnical
	case ContentEconomicIndicator:
		return SpecialistEconomic
	case ContentAnalystRating:
		return SpecialistMarket
	default:
		return SpecialistGeneral
	}
}
