// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

// SearchResponse is the envelope returned by search operations. Result
// is a pointer so that a discarded result is omitted entirely while an
// empty match list still serializes as [].
type SearchResponse struct {
	Status        string                 `json:"status"`
	Limit         *int                   `json:"limit"`
	Matches       int                    `json:"matches"`
	Truncated     bool                   `json:"truncated"`
	Exceptions    int                    `json:"exceptions"`
	LastException *string                `json:"last_exception"`
	Result        *[]Record              `json:"result,omitempty"`
	Aggregation   map[string]interface{} `json:"aggregation,omitempty"`
	Time          float64                `json:"time"`
}

// DeleteResponse reports the outcome of a delete pass.
type DeleteResponse struct {
	Status        string  `json:"status"`
	OldSize       int     `json:"old_size"`
	NewSize       int     `json:"new_size"`
	Exceptions    int     `json:"exceptions"`
	LastException *string `json:"last_exception"`
	Time          float64 `json:"time"`
}

// UpdateResponse reports the outcome of an update pass.
type UpdateResponse struct {
	Status        string  `json:"status"`
	Matches       int     `json:"matches"`
	Exceptions    int     `json:"exceptions"`
	LastException *string `json:"last_exception"`
	Time          float64 `json:"time"`
}
