package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banking/riskguard/internal/domain"
)

var factorLabels = map[string]string{
	domain.FactorDebtRatio: "ratio d'endettement",
	domain.FactorHistory:   "historique de paiement",
	domain.FactorStability: "stabilité professionnelle",
	domain.FactorCoherence: "cohérence des données",
}

// buildExplanation produces the human-readable justification of a score,
// listing the contributing factors from heaviest to lightest.
func buildExplanation(factors domain.RiskFactors, contributions map[string]float64, score float64) string {
	type weighted struct {
		name  string
		value float64
	}
	ranked := make([]weighted, 0, len(contributions))
	for name, value := range contributions {
		ranked = append(ranked, weighted{name, value})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].value != ranked[j].value {
			return ranked[i].value > ranked[j].value
		}
		return ranked[i].name < ranked[j].name
	})

	var b strings.Builder
	switch {
	case score < 25:
		fmt.Fprintf(&b, "Le score de %.1f/100 est favorable.", score)
	case score < 45:
		fmt.Fprintf(&b, "Le score de %.1f/100 est modéré et nécessite une analyse approfondie.", score)
	case score < 75:
		fmt.Fprintf(&b, "Le score de %.1f/100 est élevé.", score)
	default:
		fmt.Fprintf(&b, "Le score de %.1f/100 est critique.", score)
	}

	for _, w := range ranked {
		if w.value < 5 {
			continue // Only name factors that materially moved the score
		}
		fmt.Fprintf(&b, "\n• %s : +%.1f points de risque", factorLabels[w.name], w.value)
	}

	if factors.DebtRatio > 0.45 {
		fmt.Fprintf(&b, "\nLe ratio d'endettement de %.1f%% dépasse le seuil recommandé de 45%%.", factors.DebtRatio*100)
	}

	return b.String()
}

// recommend maps the band to the analyst-facing recommendation
func recommend(band domain.RiskBand) string {
	switch band {
	case domain.BandLow:
		return "ACCORD DE PRINCIPE - Dossier éligible sous réserve de vérifications"
	case domain.BandMedium:
		return "ÉTUDE APPROFONDIE - Demander des garanties supplémentaires"
	case domain.BandHigh:
		return "RISQUE ÉLEVÉ - Accord possible avec conditions strictes (garant, nantissement)"
	default:
		return "REFUS RECOMMANDÉ - Risque trop élevé pour le profil"
	}
}
