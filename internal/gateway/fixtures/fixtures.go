// Package fixtures provides the three GatewayConfig literals spec §8's
// concrete scenarios (S6-S8) are defined against: jsonplaceholder
// (key-pattern ID reference), github (full-URL base-stripping), and
// stripe (value-pattern ID reference with cross-table inference). The
// internal/gateway tests import these instead of redeclaring the same
// regexes and templates.
package fixtures

import (
	"regexp"

	"github.com/jgavinray/urlexec/internal/gateway"
	"github.com/jgavinray/urlexec/internal/linkdetect"
)

// JSONPlaceholder matches scenario S6: a top-level "userId" key (also in
// objects of a top-level array) links to
// /gateway/jsonplaceholder/users/{userId}, independent of any sibling "id"
// field. A "userId" nested under another object key does not match.
func JSONPlaceholder() gateway.Config {
	return gateway.Config{
		Name:          "jsonplaceholder",
		BaseURL:       "https://jsonplaceholder.typicode.com",
		GatewayPrefix: "/gateway/jsonplaceholder",
		LinkDetection: linkdetect.Config{
			GatewayPrefix: "/gateway/jsonplaceholder",
			IDKeyPatterns: []linkdetect.KeyPattern{
				{Path: "userId", Template: "/gateway/jsonplaceholder/users/{value}"},
			},
		},
		ValidPathPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^(posts|users|comments)$`),
			regexp.MustCompile(`^\d+$`),
		},
	}
}

// GitHub matches scenario S7: any full URL under https://api.github.com
// is rewritten to a local /gateway/github path by Strategy 1.
func GitHub() gateway.Config {
	return gateway.Config{
		Name:              "github",
		BaseURL:           "https://api.github.com",
		BaseURLStrip:      "https://api.github.com",
		GatewayPrefix:     "/gateway/github",
		ValidPathPatterns: []*regexp.Regexp{regexp.MustCompile(`^(users|repos)$`)},
		LinkDetection: linkdetect.Config{
			BaseURLStrip:  "https://api.github.com",
			GatewayPrefix: "/gateway/github",
		},
	}
}

// Stripe matches scenario S8: a "customer" field whose value matches
// ^cus_ links to /gateway/stripe/customers/{value} via cross_table_mappings
// resolving "customer" to the "customers" table.
func Stripe() gateway.Config {
	return gateway.Config{
		Name:          "stripe",
		BaseURL:       "https://api.stripe.com/v1",
		GatewayPrefix: "/gateway/stripe",
		LinkDetection: linkdetect.Config{
			GatewayPrefix: "/gateway/stripe",
			ValuePatterns: []linkdetect.ValuePattern{
				{Regex: regexp.MustCompile(`^cus_`), Template: "/gateway/stripe/{inferred_table}/{value}"},
			},
			CrossTableMappings: map[string]string{
				"customer": "customers",
			},
		},
		ValidPathPatterns: []*regexp.Regexp{regexp.MustCompile(`^(charges|customers)$`)},
	}
}
