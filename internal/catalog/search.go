package catalog

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/pricesync/internal/model"
)

// assetsResponse is the /assets payload. Numeric fields arrive as strings
// and may be null.
type assetsResponse struct {
	Data []assetResult `json:"data"`
}

type assetResult struct {
	ID                string  `json:"id"`
	Rank              string  `json:"rank"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Supply            *string `json:"supply"`
	MarketCapUSD      *string `json:"marketCapUsd"`
	VolumeUSD24Hr     *string `json:"volumeUsd24Hr"`
	PriceUSD          *string `json:"priceUsd"`
	ChangePercent24Hr *string `json:"changePercent24Hr"`
}

// Search returns candidate assets matching query, at most limit of them. A
// non-positive limit uses the client's configured search limit. An empty
// query returns no results without calling the API.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.AssetRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.AssetRecord{}, nil
	}
	if limit <= 0 {
		limit = c.searchLimit
	}

	params := url.Values{}
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp assetsResponse
	if err := c.get(ctx, "/assets", params, &resp); err != nil {
		return nil, err
	}

	out := make([]model.AssetRecord, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.ID == "" {
			continue
		}
		out = append(out, r.toRecord())
		if len(out) == limit {
			break
		}
	}

	c.logger.Debug("catalog search", "query", query, "results", len(out))
	return out, nil
}

func (r assetResult) toRecord() model.AssetRecord {
	return model.AssetRecord{
		ID:            r.ID,
		Name:          r.Name,
		Symbol:        r.Symbol,
		Rank:          parseRank(r.Rank),
		Supply:        parseNumber(r.Supply),
		MarketCap:     parseNumber(r.MarketCapUSD),
		Volume24h:     parseNumber(r.VolumeUSD24Hr),
		Price:         parseNumber(r.PriceUSD),
		ChangePercent: parseNumber(r.ChangePercent24Hr),
	}
}

// parseNumber converts a nullable decimal string.
// Returns 0 for null, empty or invalid input.
func parseNumber(s *string) float64 {
	if s == nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseRank returns 0 for empty or invalid input.
func parseRank(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
