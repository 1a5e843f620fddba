package gateway

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/arenax/app/gateway/controller"
	"github.com/canopy-network/arenax/app/gateway/types"
	"github.com/canopy-network/arenax/pkg/utils"
)

// NewServer builds the HTTP server for app.
func NewServer(app *types.App) error {
	ctler, err := controller.NewController(app)
	if err != nil {
		return err
	}
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router, ctler.Origins...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
