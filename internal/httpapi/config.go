package httpapi

// maxUploadBytes caps the request body of the predict routes.
var maxUploadBytes int64 = 10 << 20

// SetMaxUploadBytes configures the maximum predict request body size.
// Non-positive values restore the 10 MiB default.
func SetMaxUploadBytes(n int64) {
	if n <= 0 {
		maxUploadBytes = 10 << 20
		return
	}
	maxUploadBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// staticDir, when set, is served for GET paths no API route claims.
var staticDir string

// SetStaticDir sets the directory holding the built front end ("" disables).
func SetStaticDir(dir string) { staticDir = dir }
