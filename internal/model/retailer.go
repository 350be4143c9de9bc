package model

// Retailer is a known merchant with the email domains it sends from.
// Matching is for labeling only and never gates processing.
type Retailer struct {
	Name    string
	Domains []string
	ID      int64
}
