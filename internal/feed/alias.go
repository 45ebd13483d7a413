package feed

// vendorAliases maps vendor asset identifiers to internal identifiers.
// Identifiers missing from the table are the same on both sides.
var vendorAliases = map[string]string{
	"binance-coin": "binancecoin",
}

// internalAliases is the reverse of vendorAliases.
var internalAliases = func() map[string]string {
	m := make(map[string]string, len(vendorAliases))
	for vendor, internal := range vendorAliases {
		m[internal] = vendor
	}
	return m
}()

// Normalize returns the internal identifier for a vendor identifier.
func Normalize(vendorID string) string {
	if id, ok := vendorAliases[vendorID]; ok {
		return id
	}
	return vendorID
}

// VendorID returns the vendor identifier used to subscribe to an internal one.
func VendorID(assetID string) string {
	if id, ok := internalAliases[assetID]; ok {
		return id
	}
	return assetID
}
