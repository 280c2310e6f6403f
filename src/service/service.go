package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service exposes the engine's state over HTTP: /stats, /peers and the
// prometheus /metrics endpoint.
type Service struct {
	sync.Mutex

	bindAddress string
	engine      *gossip.Engine
	logger      *logrus.Entry
}

// NewService instantiates the service and registers its handlers.
func NewService(bindAddress string, engine *gossip.Engine, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		engine:      engine,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering murmur API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve starts the HTTP service. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving murmur API")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.WithError(err).Error("Service")
	}
}

// GetStats returns the engine statistics.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetPeers returns the contact infos currently known to the engine.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	type peerInfo struct {
		ID           string `json:"id"`
		Gossip       string `json:"gossip"`
		ShredVersion uint16 `json:"shred_version"`
		Wallclock    uint64 `json:"wallclock"`
	}

	var peers []peerInfo
	for _, ci := range s.engine.KnownPeers() {
		peers = append(peers, peerInfo{
			ID:           ci.ID.String(),
			Gossip:       ci.Gossip.String(),
			ShredVersion: ci.ShredVersion,
			Wallclock:    ci.Wallclock,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(peers)
}
