// Package crawler defines the domain types, page-driver contract and shared
// interfaces used by the discovery and enrichment phases of docket-crawler.
package crawler
