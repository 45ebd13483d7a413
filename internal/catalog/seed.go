package catalog

import "github.com/rickgao/pricesync/internal/model"

// seed is the static catalog shipped with the binary. Prices and change
// values are fallbacks shown until the feed or cache provide data.
var seed = []model.AssetRecord{
	{
		ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC", Rank: 1,
		Supply: 19_700_000, MarketCap: 1_320_000_000_000, Volume24h: 28_000_000_000,
		Price: 67000, ChangePercent: 1.2,
		Description: "Peer-to-peer electronic cash system secured by proof of work.",
	},
	{
		ID: "ethereum", Name: "Ethereum", Symbol: "ETH", Rank: 2,
		Supply: 120_100_000, MarketCap: 415_000_000_000, Volume24h: 14_000_000_000,
		Price: 3456.78, ChangePercent: -0.8,
		Description: "Programmable blockchain for smart contracts and decentralized applications.",
	},
	{
		ID: "tether", Name: "Tether", Symbol: "USDT", Rank: 3,
		Supply: 112_000_000_000, MarketCap: 112_000_000_000, Volume24h: 45_000_000_000,
		Price: 1, ChangePercent: 0.01,
		Description: "Stablecoin pegged to the US dollar.",
	},
	{
		ID: "binancecoin", Name: "BNB", Symbol: "BNB", Rank: 4,
		Supply: 147_600_000, MarketCap: 87_000_000_000, Volume24h: 1_800_000_000,
		Price: 589.23, ChangePercent: 0.5,
		Description: "Native token of the BNB Chain ecosystem.",
	},
	{
		ID: "solana", Name: "Solana", Symbol: "SOL", Rank: 5,
		Supply: 462_000_000, MarketCap: 66_000_000_000, Volume24h: 2_500_000_000,
		Price: 143.1, ChangePercent: 2.3,
		Description: "High-throughput proof-of-stake blockchain.",
	},
	{
		ID: "xrp", Name: "XRP", Symbol: "XRP", Rank: 6,
		Supply: 55_600_000_000, MarketCap: 29_000_000_000, Volume24h: 1_100_000_000,
		Price: 0.52, ChangePercent: -1.1,
		Description: "Digital asset for payment settlement on the XRP Ledger.",
	},
	{
		ID: "cardano", Name: "Cardano", Symbol: "ADA", Rank: 7,
		Supply: 35_700_000_000, MarketCap: 16_000_000_000, Volume24h: 400_000_000,
		Price: 0.45, ChangePercent: 0.9,
		Description: "Proof-of-stake blockchain platform.",
	},
	{
		ID: "dogecoin", Name: "Dogecoin", Symbol: "DOGE", Rank: 8,
		Supply: 144_000_000_000, MarketCap: 22_000_000_000, Volume24h: 900_000_000,
		Price: 0.155, ChangePercent: 3.4,
		Description: "Open-source cryptocurrency derived from Litecoin.",
	},
}

// Seed returns a copy of the static catalog.
func Seed() []model.AssetRecord {
	out := make([]model.AssetRecord, len(seed))
	copy(out, seed)
	return out
}
