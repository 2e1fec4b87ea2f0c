//go:build swagger

package httpapi

import (
	"log"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// MountSwagger serves the Swagger UI under /swagger/. The document comes from
// `swag init -g cmd/captchad/docs.go` output linked into the binary.
func MountSwagger(r chi.Router) {
	if _, err := swag.ReadDoc(); err != nil {
		if zlog != nil {
			zlog.Warn().Err(err).Msg("swagger docs not registered; run swag init")
		} else {
			log.Printf("swagger docs not registered: %v", err)
		}
	}
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
