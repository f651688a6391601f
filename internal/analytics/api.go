package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// startHTTP launches the HTTP server for the snapshot API.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/snapshot", svc.handleSnapshot)
		mux.HandleFunc("/signal", svc.handleSignal)
		mux.HandleFunc("/hedge", svc.handleHedge)
		mux.HandleFunc("/stationarity", svc.handleStationarity)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		log.Printf("[analytics] HTTP server on %s (/snapshot, /signal, /hedge, /stationarity)", svc.cfg.HTTPAddr)

		srv := &http.Server{Addr: svc.cfg.HTTPAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[analytics] HTTP server error: %v", err)
		}
	}()
}

// handleSnapshot serves the full latest snapshot.
func (svc *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := svc.engine.Latest()
	if snap == nil {
		http.Error(w, `{"error":"no snapshot yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(snap.JSON())
}

// handleSignal serves just the current signal and the z-score behind it.
func (svc *Service) handleSignal(w http.ResponseWriter, r *http.Request) {
	snap := svc.engine.Latest()
	if snap == nil {
		http.Error(w, `{"error":"no snapshot yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pair":        snap.SymbolA + ":" + snap.SymbolB,
		"signal":      snap.Signal,
		"z_score":     snap.LatestZScore(),
		"computed_at": snap.ComputedAt,
	})
}

// handleHedge serves the hedge ratio currently in force.
func (svc *Service) handleHedge(w http.ResponseWriter, r *http.Request) {
	snap := svc.engine.Latest()
	if snap == nil || snap.HedgeRatio == nil {
		http.Error(w, `{"error":"no hedge ratio yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap.HedgeRatio)
}

// handleStationarity serves the latest ADF result.
func (svc *Service) handleStationarity(w http.ResponseWriter, r *http.Request) {
	snap := svc.engine.Latest()
	if snap == nil || snap.Stationarity == nil {
		http.Error(w, `{"error":"no stationarity result yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap.Stationarity)
}
