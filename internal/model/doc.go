// Package model defines shared data types used across the price sync service.
//
// Conventions:
//   - Prices: float64 quote-currency units (USD)
//   - Timestamps: time.Time wall clock, JSON encoded as RFC 3339
//   - IDs: lowercase internal asset identifiers (e.g. "bitcoin", "binancecoin")
package model
