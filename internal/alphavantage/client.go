package alphavantage

import (
	"context"
	"log/slog"

	"resty.dev/v3"

	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
	"stockdesk/internal/ratelimit"
)

// DefaultBaseURL is the production AlphaVantage query endpoint
const DefaultBaseURL = "https://www.alphavantage.co/query"

// OverviewResponse represents the AlphaVantage OVERVIEW response
type OverviewResponse struct {
	Symbol       string `json:"Symbol"`
	Name         string `json:"Name"`
	Description  string `json:"Description"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Options configures a Client
type Options struct {
	APIKey  string
	BaseURL string
	HTTP    fetcher.ClientOptions

	// Limiter throttles outgoing requests; nil uses the shared limiter
	Limiter *ratelimit.Limiter
}

// Client fetches quotes and company overviews from AlphaVantage
type Client struct {
	apiKey  string
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a new AlphaVantage client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.GetLimiter()
	}

	return &Client{
		apiKey:  opts.APIKey,
		client:  fetcher.NewHTTPClient(opts.BaseURL, opts.HTTP),
		limiter: opts.Limiter,
	}
}

// FetchQuote retrieves the current GLOBAL_QUOTE for symbol
func (c *Client) FetchQuote(ctx context.Context, symbol string) (quote.Record, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Record{}, fetcher.NewClientError(0, "symbol is required")
	}

	var payload quote.Payload
	if err := c.get(ctx, "GLOBAL_QUOTE", symbol, &payload); err != nil {
		return quote.Record{}, err
	}

	rec, err := quote.Normalize(payload)
	if err != nil {
		return quote.Record{}, fetcher.FromNormalizeError(symbol, err)
	}

	return rec, nil
}

// FetchCompanyInfo retrieves the company OVERVIEW for symbol.
// It never fails: any problem yields the placeholder company.
func (c *Client) FetchCompanyInfo(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
	symbol = quote.NormalizeSymbol(symbol)

	var overview OverviewResponse
	if err := c.get(ctx, "OVERVIEW", symbol, &overview); err != nil {
		slog.Debug("company overview unavailable", "symbol", symbol, "error", err)
		return quote.PlaceholderCompany(symbol), nil
	}

	if overview.Note != "" || overview.Information != "" || overview.ErrorMessage != "" {
		slog.Debug("company overview refused", "symbol", symbol,
			"note", overview.Note, "information", overview.Information, "error_message", overview.ErrorMessage)
		return quote.PlaceholderCompany(symbol), nil
	}

	info := quote.PlaceholderCompany(symbol)
	if overview.Name != "" {
		info.Name = overview.Name
	}
	info.Description = overview.Description
	if overview.Sector != "" {
		info.Sector = overview.Sector
	}
	if overview.Industry != "" {
		info.Industry = overview.Industry
	}
	return info, nil
}

// Name implements fetcher.QuoteSource
func (c *Client) Name() string {
	return "alphavantage"
}

// Close releases the underlying HTTP client resources
func (c *Client) Close() error {
	return c.client.Close()
}

// get performs one rate-limited query and decodes the JSON body into result
func (c *Client) get(ctx context.Context, function, symbol string, result any) error {
	if err := c.limiter.Wait(ctx, ratelimit.APIAlphaVantage); err != nil {
		return fetcher.NewTimeoutError(err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   c.apiKey,
			"function": function,
			"symbol":   symbol,
		}).
		SetExpectResponseContentType("application/json").
		SetResult(result).
		Get("")

	if err != nil {
		if ctx.Err() != nil {
			return fetcher.NewTimeoutError(ctx.Err())
		}
		if resp != nil && resp.IsSuccess() {
			// the body arrived but could not be decoded
			fe := fetcher.NewMalformedError("could not decode response")
			fe.Symbol = symbol
			fe.Cause = err
			return fe
		}
		fe := fetcher.NewNetworkError(err)
		fe.Symbol = symbol
		return fe
	}

	if !resp.IsSuccess() {
		fe := fetcher.ClassifyHTTPError(resp.StatusCode())
		fe.Symbol = symbol
		return fe
	}

	return nil
}
