// Package branding maps branding keys to the product strings shown to users.
package branding

import "sort"

// unknownPrefix prefixes the result of a lookup for a key with no entry.
const unknownPrefix = "Unknown Branding "

// table holds the compiled-in branding strings.
var table = map[string]string{
	"BRANDING_manufacturerLong":  "Citrix Systems, Inc.",
	"BRANDING_manufacturerShort": "Citrix",
	"BRANDING_productBrand":      "XenServer",
	"BRANDING_toolsProduct":      "XenServer Tools",
	"BRANDING_guestAgent":        "XenServer Guest Agent",
	"BRANDING_guestAgentLong":    "XenServer Windows Guest Agent",
	"BRANDING_consoleChannel":    "XenServer Console",
	"BRANDING_copyright":         "Copyright (c) Citrix Systems, Inc.",
}

// Control looks up branding strings.
type Control struct{}

// New returns a Control. The resource path is accepted for compatibility
// and not read; all strings are compiled in.
func New(path string) *Control {
	return &Control{}
}

// String returns the branding string for key, or "Unknown Branding <key>".
func (c *Control) String(key string) string {
	if v, ok := table[key]; ok {
		return v
	}
	return unknownPrefix + key
}

// Keys returns the known keys in sorted order.
func (c *Control) Keys() []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
