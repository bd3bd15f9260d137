package market

import (
	"fmt"
	"math"

	"github.com/Checker-Finance/market-intel/pkg/model"
)

// Default insight texts.
const (
	MsgNoCompetitors  = "Sem concorrentes para comparar preços."
	MsgPriceAligned   = "Seu preço está alinhado com o mercado. Boa posição competitiva."
	MsgNoSalesData    = "Sem dados de vendas dos concorrentes."
	MsgHighInterest   = "Alto interesse de busca! Momento ideal para investir em marketing e SEO."
	MsgModerate       = "Interesse moderado. Campanhas direcionadas podem aumentar visibilidade."
	MsgLowInterest    = "Baixo interesse de busca. Considere estratégias de educação do mercado."
	MsgSeasonalSearch = " Produto com alta sazonalidade - planeje campanhas conforme época."
	MsgSeasonalSales  = "Produto sazonal detectado."

	MsgFallbackPrice      = "Não foi possível comparar preços no momento."
	MsgFallbackPopularity = "Dados de mercado indisponíveis."
	MsgFallbackSearch     = "Análise de busca não disponível."
)

// AveragePrice is the mean competitor price, 0 when there are none.
func AveragePrice(competitors []model.Competitor) float64 {
	if len(competitors) == 0 {
		return 0
	}
	var sum float64
	for _, c := range competitors {
		sum += c.Price
	}
	return sum / float64(len(competitors))
}

// PriceInsight positions price against the competitor average within ±bandPct.
func PriceInsight(price float64, competitors []model.Competitor, bandPct float64) string {
	avg := AveragePrice(competitors)
	if len(competitors) == 0 || avg <= 0 {
		return MsgNoCompetitors
	}
	diff := (price - avg) / avg * 100
	switch {
	case diff < -bandPct:
		return fmt.Sprintf("Seu preço está %.1f%% abaixo da média. Ótima competitividade, considere aumentar margem.", math.Abs(diff))
	case diff > bandPct:
		return fmt.Sprintf("Seu preço está %.1f%% acima da média. Destaque diferenciais ou considere ajuste.", diff)
	default:
		return MsgPriceAligned
	}
}

// PopularityInsight summarises competitor sales.
func PopularityInsight(competitors []model.Competitor, seasonality string) string {
	var total, top, n int
	for _, c := range competitors {
		if c.SoldQuantity <= 0 {
			continue
		}
		n++
		total += c.SoldQuantity
		top = max(top, c.SoldQuantity)
	}
	if n == 0 {
		return MsgNoSalesData
	}
	avg := int(math.Round(float64(total) / float64(n)))
	msg := fmt.Sprintf("Mercado ativo com %d vendas médias. Líder tem %d vendas.", avg, top)
	if seasonality == model.SeasonalityHigh {
		msg += " " + MsgSeasonalSales
	}
	return msg
}

// SearchInsight comments on the search-interest score.
func SearchInsight(cfg Config, score int, seasonality string) string {
	var msg string
	switch {
	case score >= cfg.HighInterest:
		msg = MsgHighInterest
	case score >= cfg.ModerateInterest:
		msg = MsgModerate
	default:
		msg = MsgLowInterest
	}
	if seasonality == model.SeasonalityHigh {
		msg += MsgSeasonalSearch
	}
	return msg
}

// BuildInsights derives all three commentaries. It has no side effects.
func BuildInsights(cfg Config, price float64, competitors []model.Competitor, search model.SearchInterest) model.Insights {
	return model.Insights{
		Price:      PriceInsight(price, competitors, cfg.PriceBandPct),
		Popularity: PopularityInsight(competitors, search.Seasonality),
		Search:     SearchInsight(cfg, search.Score, search.Seasonality),
	}
}

// TruncateTitle shortens titles longer than maxLen runes with an ellipsis.
func TruncateTitle(title string, maxLen int) string {
	r := []rune(title)
	if len(r) <= maxLen {
		return title
	}
	return string(r[:maxLen-3]) + "..."
}

// BuildPriceComparison lines up the user's price with each competitor.
func BuildPriceComparison(price float64, competitors []model.Competitor, titleMax int) model.PriceComparison {
	pc := model.PriceComparison{
		Labels: make([]string, 0, len(competitors)+1),
		Prices: make([]float64, 0, len(competitors)+1),
	}
	pc.Labels = append(pc.Labels, "Seu Produto")
	pc.Prices = append(pc.Prices, price)
	for _, c := range competitors {
		pc.Labels = append(pc.Labels, TruncateTitle(c.Title, titleMax))
		pc.Prices = append(pc.Prices, c.Price)
	}
	return pc
}

// BuildPopularity lists competitor sales.
func BuildPopularity(competitors []model.Competitor, titleMax int) model.Popularity {
	p := model.Popularity{
		Labels: make([]string, 0, len(competitors)),
		Sales:  make([]int, 0, len(competitors)),
	}
	for _, c := range competitors {
		p.Labels = append(p.Labels, TruncateTitle(c.Title, titleMax))
		p.Sales = append(p.Sales, c.SoldQuantity)
	}
	return p
}
