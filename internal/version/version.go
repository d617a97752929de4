// ABOUTME: Version and product identification for walkie
// ABOUTME: Reported in the server status page and mDNS TXT records
package version

// Overridable at build time via -ldflags "-X".
var Version = "0.1.0"

const (
	Product      = "walkie"
	Manufacturer = "Resonate Protocol"
)

// String returns "product/version".
func String() string {
	return Product + "/" + Version
}
