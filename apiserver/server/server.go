package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.HTTP)

// Start begins serving the query API on listenAddr and returns a shutdown
// function the caller defers, mirroring the teacher's
// server.Start(cfg.HTTPListen) / shutdownServer() pairing.
func Start(listenAddr string, reg *Registry, debugOn bool) (shutdown func()) {
	router := mux.NewRouter()
	addRoutes(router, reg, debugOn)

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Infof("API server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("API server stopped unexpectedly: %s", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Errorf("error shutting down API server: %s", err)
		}
	}
}
