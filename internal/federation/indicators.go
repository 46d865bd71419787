package federation

import (
	"sort"

	talib "github.com/markcheno/go-talib"

	"github.com/quantdesk/orchestrator/internal/domain"
)

// parseAlphaVantageDailySeries turns the AlphaVantage TIME_SERIES_DAILY
// "Time Series (Daily)" map into an ascending-by-date bar slice.
func parseAlphaVantageDailySeries(symbol string, payload map[string]any) *domain.PriceRecord {
	raw, ok := payload["Time Series (Daily)"].(map[string]any)
	if !ok {
		return &domain.PriceRecord{Symbol: symbol}
	}

	bars := make([]domain.PriceBar, 0, len(raw))
	for date, v := range raw {
		day, ok := v.(map[string]any)
		if !ok {
			continue
		}
		bars = append(bars, domain.PriceBar{
			Date:   date,
			Open:   floatField(day, "1. open"),
			High:   floatField(day, "2. high"),
			Low:    floatField(day, "3. low"),
			Close:  floatField(day, "4. close"),
			Volume: int64(floatField(day, "5. volume")),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })

	return &domain.PriceRecord{Symbol: symbol, Bars: bars}
}

// computeTechnical derives RSI, MACD, EMA(50/200) and ATR from a bar
// history using go-talib. Indicators that need more bars than are
// available are left at zero rather than computed on a short window.
func computeTechnical(symbol string, price *domain.PriceRecord) *domain.TechnicalRecord {
	technical := &domain.TechnicalRecord{Symbol: symbol}
	if price == nil || len(price.Bars) == 0 {
		return technical
	}

	closes := make([]float64, len(price.Bars))
	highs := make([]float64, len(price.Bars))
	lows := make([]float64, len(price.Bars))
	for i, bar := range price.Bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
	}

	if len(closes) >= 15 {
		rsi := talib.Rsi(closes, 14)
		technical.RSI = rsi[len(rsi)-1]
	}
	if len(closes) >= 35 {
		macd, _, _ := talib.Macd(closes, 12, 26, 9)
		technical.MACD = macd[len(macd)-1]
	}
	if len(closes) >= 50 {
		ema50 := talib.Ema(closes, 50)
		technical.EMA50 = ema50[len(ema50)-1]
	}
	if len(closes) >= 200 {
		ema200 := talib.Ema(closes, 200)
		technical.EMA200 = ema200[len(ema200)-1]
	}
	if len(closes) >= 15 {
		atr := talib.Atr(highs, lows, closes, 14)
		technical.ATR = atr[len(atr)-1]
	}

	return technical
}
