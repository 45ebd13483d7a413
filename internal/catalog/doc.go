// Package catalog provides the static seed catalog and a client for the
// asset search REST API.
package catalog
