package domain

// Facet is an independently-resolved category within a market. Each facet
// accumulates its own stake pools and resolves to its own outcome.
type Facet string

// The recognized facet vocabulary. Stakes naming any other facet are
// rejected with ErrUnknownFacet.
const (
	FacetTruthfulness Facet = "truthfulness"
	FacetOriginality  Facet = "originality"
	FacetAuthenticity Facet = "authenticity"
)

// AllFacets lists the recognized facets in canonical order.
var AllFacets = []Facet{FacetTruthfulness, FacetOriginality, FacetAuthenticity}

// ParseFacet validates a raw facet name against the recognized set.
func ParseFacet(s string) (Facet, error) {
	for _, f := range AllFacets {
		if string(f) == s {
			return f, nil
		}
	}
	return "", ErrUnknownFacet
}

// ValidateFacets checks a market's facet list: non-empty, duplicate-free,
// and drawn entirely from the recognized set.
func ValidateFacets(facets []Facet) error {
	if len(facets) == 0 {
		return ErrNoFacets
	}
	seen := make(map[Facet]bool, len(facets))
	for _, f := range facets {
		if _, err := ParseFacet(string(f)); err != nil {
			return err
		}
		if seen[f] {
			return ErrDuplicateFacet
		}
		seen[f] = true
	}
	return nil
}
