package configs

import "errors"

const configKey = "configs"

var (
	errUnknownSection             = errors.New("unknown config section")
	errAnalysisProviderNotEnabled = errors.New("no enabled ai provider for analysis")
)

// sectionKeys are the canonical top-level keys of FullConfig. Patches naming
// anything else are rejected instead of silently persisted.
var sectionKeys = map[string]struct{}{
	"seo":                             {},
	"url":                             {},
	"bark_options":                    {},
	"s3_options":                      {},
	"archive_options":                 {},
	"third_party_service_integration": {},
	"analyze_options":                 {},
	"ai":                              {},
}

// sectionKeyAliases maps retired section names onto their current key.
var sectionKeyAliases = map[string]string{
	"backup_options": "archive_options",
}
