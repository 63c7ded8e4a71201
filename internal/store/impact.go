package store

import "sort"

// RiskLevel grades how directly a caller depends on a changed function.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// HopToRisk maps a caller's hop distance to a risk level.
func HopToRisk(hop int) RiskLevel {
	switch hop {
	case 1:
		return RiskCritical
	case 2:
		return RiskHigh
	case 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ImpactSummary counts affected callers per risk level.
type ImpactSummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// BuildImpactSummary computes the risk distribution of deduplicated hops.
func BuildImpactSummary(hops []*NodeHop) ImpactSummary {
	var s ImpactSummary
	for _, nh := range hops {
		switch HopToRisk(nh.Hop) {
		case RiskCritical:
			s.Critical++
		case RiskHigh:
			s.High++
		case RiskMedium:
			s.Medium++
		default:
			s.Low++
		}
		s.Total++
	}
	return s
}

// DeduplicateHops merges hops from several traversals, keeping the
// smallest hop per node, ordered by hop then id.
func DeduplicateHops(hops []*NodeHop) []*NodeHop {
	best := make(map[string]*NodeHop)
	for _, nh := range hops {
		if existing, ok := best[nh.Node.ID]; !ok || nh.Hop < existing.Hop {
			best[nh.Node.ID] = nh
		}
	}
	result := make([]*NodeHop, 0, len(best))
	for _, nh := range best {
		result = append(result, nh)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Hop != result[j].Hop {
			return result[i].Hop < result[j].Hop
		}
		return result[i].Node.ID < result[j].Node.ID
	})
	return result
}
