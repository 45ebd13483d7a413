// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/pricesync/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/pricesync/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/pricesync/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/pricesync
package version

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time", as reported by /health.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
