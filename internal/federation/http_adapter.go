package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantdesk/orchestrator/internal/apierr"
	"github.com/quantdesk/orchestrator/internal/domain"
)

const (
	alphaVantageURL = "https://www.alphavantage.co/query"
	twelveDataURL   = "https://api.twelvedata.com"
	iexCloudURL     = "https://cloud.iexapis.com/stable"
	finnhubURL      = "https://finnhub.io/api/v1"
	tushareURL      = "https://api.tushare.pro"
)

// httpAdapter is a generic REST-over-JSON adapter shared by every quote
// vendor this federation speaks to; only the URL/param shape and the
// response-to-DataRecord mapping differ per source.
type httpAdapter struct {
	tag     domain.SourceTag
	client  *http.Client
	baseURL string
	apiKey  string
}

func newHTTPAdapter(tag domain.SourceTag, client *http.Client, baseURL, apiKey string) *httpAdapter {
	return &httpAdapter{tag: tag, client: client, baseURL: baseURL, apiKey: apiKey}
}

func (a *httpAdapter) Tag() domain.SourceTag { return a.tag }

func (a *httpAdapter) Fetch(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
	if a.apiKey == "" {
		return nil, apierr.Auth("%s has no API key configured", a.tag)
	}

	req, err := a.buildRequest(ctx, category, symbol)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apierr.UnavailableWrap(err, "%s request failed", a.tag)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.RateLimit("%s rejected the request (429)", a.tag)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Unavailable("%s returned HTTP %d", a.tag, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apierr.InternalWrap(err, "%s returned unparseable JSON", a.tag)
	}
	if msg, ok := payload["Error Message"]; ok {
		return nil, apierr.NotFound("%s: %v", a.tag, msg)
	}
	if note, ok := payload["Note"]; ok {
		return nil, apierr.RateLimit("%s: %v", a.tag, note)
	}

	return a.toRecord(category, symbol, payload)
}

func (a *httpAdapter) buildRequest(ctx context.Context, category domain.DataCategory, symbol string) (*http.Request, error) {
	u, query, err := a.endpoint(category, symbol)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apierr.InternalWrap(err, "building %s request", a.tag)
	}
	req.URL.RawQuery = query.Encode()
	return req, nil
}

func (a *httpAdapter) endpoint(category domain.DataCategory, symbol string) (string, url.Values, error) {
	q := url.Values{}
	switch a.tag {
	case domain.SourceAlphaVantage:
		q.Set("apikey", a.apiKey)
		q.Set("symbol", symbol)
		switch category {
		case domain.CategoryBasicInfo, domain.CategoryFundamentals:
			q.Set("function", "OVERVIEW")
		case domain.CategoryPrice, domain.CategoryTechnical:
			q.Set("function", "TIME_SERIES_DAILY")
			q.Set("outputsize", "compact")
		default:
			return "", nil, apierr.Validation("%s does not support category %s", a.tag, category)
		}
		return a.baseURL, q, nil

	case domain.SourceTwelveData:
		q.Set("apikey", a.apiKey)
		q.Set("symbol", symbol)
		switch category {
		case domain.CategoryBasicInfo:
			return a.baseURL + "/profile", q, nil
		case domain.CategoryPrice:
			q.Set("interval", "1day")
			return a.baseURL + "/time_series", q, nil
		default:
			return a.baseURL + "/quote", q, nil
		}

	case domain.SourceIEXCloud:
		q.Set("token", a.apiKey)
		switch category {
		case domain.CategoryBasicInfo:
			return fmt.Sprintf("%s/stock/%s/company", a.baseURL, symbol), q, nil
		case domain.CategoryPrice:
			return fmt.Sprintf("%s/stock/%s/chart/1m", a.baseURL, symbol), q, nil
		default:
			return fmt.Sprintf("%s/stock/%s/quote", a.baseURL, symbol), q, nil
		}

	case domain.SourceFinnhub:
		q.Set("token", a.apiKey)
		q.Set("symbol", symbol)
		switch category {
		case domain.CategoryBasicInfo:
			return a.baseURL + "/stock/profile2", q, nil
		case domain.CategoryNews:
			return a.baseURL + "/company-news", q, nil
		default:
			return a.baseURL + "/quote", q, nil
		}

	case domain.SourceTushare:
		q.Set("token", a.apiKey)
		q.Set("ts_code", symbol)
		return a.baseURL, q, nil

	default:
		return "", nil, apierr.Internal("%s has no endpoint mapping", a.tag)
	}
}

func (a *httpAdapter) toRecord(category domain.DataCategory, symbol string, payload map[string]any) (*domain.DataRecord, error) {
	rec := &domain.DataRecord{
		Symbol:    symbol,
		Category:  category,
		Source:    string(a.tag),
		FetchedAt: time.Now(),
	}

	switch category {
	case domain.CategoryBasicInfo:
		rec.BasicInfo = &domain.BasicInfoRecord{
			Symbol:   symbol,
			Name:     stringField(payload, "Name", "name", "companyName"),
			Exchange: stringField(payload, "Exchange", "exchange"),
			Sector:   stringField(payload, "Sector", "sector", "finnhubIndustry"),
			Currency: stringField(payload, "Currency", "currency"),
		}
	case domain.CategoryFundamentals:
		rec.Fundamentals = &domain.FundamentalsRecord{
			Symbol:        symbol,
			PERatio:       floatField(payload, "PERatio", "pe_ratio"),
			PBRatio:       floatField(payload, "PriceToBookRatio", "pb_ratio"),
			ROE:           floatField(payload, "ReturnOnEquityTTM", "roe"),
			DividendYield: floatField(payload, "DividendYield", "dividend_yield"),
		}
	case domain.CategoryPrice:
		if a.tag == domain.SourceAlphaVantage {
			rec.Price = parseAlphaVantageDailySeries(symbol, payload)
		} else {
			rec.Price = &domain.PriceRecord{Symbol: symbol}
		}
	case domain.CategoryNews:
		rec.News = &domain.NewsRecord{Symbol: symbol}
	case domain.CategoryTechnical:
		if a.tag == domain.SourceAlphaVantage {
			rec.Technical = computeTechnical(symbol, parseAlphaVantageDailySeries(symbol, payload))
		} else {
			rec.Technical = &domain.TechnicalRecord{Symbol: symbol}
		}
	default:
		return nil, apierr.Validation("unknown category %s", category)
	}

	return rec, nil
}

func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func floatField(payload map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// unauthenticatedAdapter covers sources with no API-key requirement in this
// deployment (akshare, baostock, yfinance all front a locally-hosted proxy
// in the reference system rather than a public authenticated API).
type unauthenticatedAdapter struct {
	tag    domain.SourceTag
	client *http.Client
}

func newUnauthenticatedAdapter(tag domain.SourceTag, client *http.Client) *unauthenticatedAdapter {
	return &unauthenticatedAdapter{tag: tag, client: client}
}

func (a *unauthenticatedAdapter) Tag() domain.SourceTag { return a.tag }

func (a *unauthenticatedAdapter) Fetch(ctx context.Context, category domain.DataCategory, symbol string) (*domain.DataRecord, error) {
	return nil, apierr.Unavailable("%s adapter has no proxy endpoint configured for this deployment", a.tag)
}
