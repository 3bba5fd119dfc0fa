package params

// Version is the proxy release, kept in sync with the VERSION file.
const Version = "0.1.0"

// ClientVersion is reported by eth_getClientVersion.
func ClientVersion() string {
	return "verif-proxy/v" + Version
}
