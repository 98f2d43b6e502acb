// Package agenthttp serves a read only view of an agent over HTTP.
package agenthttp

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/utxopaychan/paychan/agent"
)

func New(a *agent.Agent) http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", handleSnapshot(a))
	return cors.Default().Handler(m)
}

func handleSnapshot(a *agent.Agent) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		type agentConfig struct {
			Network         string
			Prefix          string
			IncomingAddress string
			OutgoingAddress string
			Timeout         uint32
			Fee             int64
		}
		v := struct {
			Config   agentConfig
			Snapshot agent.Snapshot
		}{
			Config: agentConfig{
				Network:         a.Network().Name,
				Prefix:          a.Prefix(),
				IncomingAddress: a.Incoming().Address().EncodeAddress(),
				OutgoingAddress: a.Outgoing().Address().EncodeAddress(),
				Timeout:         a.Outgoing().Timeout(),
				Fee:             a.Outgoing().Fee(),
			},
			Snapshot: a.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
