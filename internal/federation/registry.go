package federation

import (
	"net/http"
	"time"

	"github.com/quantdesk/orchestrator/internal/domain"
	"github.com/rs/zerolog"
)

// RegistryConfig carries the per-source credentials and tuning needed to
// build the adapter set. Any field left blank disables that source; its
// adapter is still registered so priority lists resolve, but every Fetch on
// it returns apierr.Auth immediately.
type RegistryConfig struct {
	TushareToken      string
	AlphaVantageKey   string
	TwelveDataKey     string
	IEXCloudToken     string
	FinnhubKey        string
	HTTPTimeout       time.Duration
}

// BuildDefaultFederation wires every known SourceTag's adapter into a fresh
// Federation using sensible per-source rate limits matched to each
// provider's published free-tier quota.
func BuildDefaultFederation(manager *PriorityManager, cfg RegistryConfig, log zerolog.Logger) *Federation {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	f := New(manager, log)

	f.RegisterAdapter(newHTTPAdapter(domain.SourceAlphaVantage, httpClient, alphaVantageURL, cfg.AlphaVantageKey), 5)
	f.RegisterAdapter(newHTTPAdapter(domain.SourceTwelveData, httpClient, twelveDataURL, cfg.TwelveDataKey), 8)
	f.RegisterAdapter(newHTTPAdapter(domain.SourceIEXCloud, httpClient, iexCloudURL, cfg.IEXCloudToken), 100)
	f.RegisterAdapter(newHTTPAdapter(domain.SourceFinnhub, httpClient, finnhubURL, cfg.FinnhubKey), 60)
	f.RegisterAdapter(newHTTPAdapter(domain.SourceTushare, httpClient, tushareURL, cfg.TushareToken), 200)
	f.RegisterAdapter(newUnauthenticatedAdapter(domain.SourceAkshare, httpClient), 120)
	f.RegisterAdapter(newUnauthenticatedAdapter(domain.SourceBaostock, httpClient), 120)
	f.RegisterAdapter(newUnauthenticatedAdapter(domain.SourceYFinance, httpClient), 60)

	return f
}
