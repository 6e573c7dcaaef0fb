// Package adminhttp mounts the relay's administrative HTTP surface:
// liveness, Prometheus scraping, the balance lookup endpoint, and the
// NIP-11-style relay information document.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nbd-wtf/go-nostr/nip11"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaycore/users"
)

// BalanceLookup is the subset of *users.Repository the /user endpoint
// depends on.
type BalanceLookup interface {
	GetBalanceStrict(ctx context.Context, pubkeyHex string) (*big.Int, error)
}

// Config wires the route group's collaborators.
type Config struct {
	APIKey   string
	Users    BalanceLookup
	RelayInfo nip11.RelayInformationDocument
}

// New builds the admin router described by spec.md §6, plus the
// relay information document at / and a /metrics scrape endpoint.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/user", userHandler(cfg))

	r.Get("/", relayInfoHandler(cfg.RelayInfo))

	return r
}

// userHandler implements GET /user?token=&pubkey=, per spec.md §6: 403
// if the server API key is unset or the token is absent or wrong, 400
// if pubkey is missing, 404 if the user is unknown, 200 with the
// balance otherwise.
func userHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if cfg.APIKey == "" || token == "" || token != cfg.APIKey {
			writeJSONError(w, http.StatusForbidden, errors.New("forbidden"))
			return
		}

		pubkeyHex := strings.TrimSpace(r.URL.Query().Get("pubkey"))
		if pubkeyHex == "" {
			writeJSONError(w, http.StatusBadRequest, errors.New("pubkey is required"))
			return
		}

		balance, err := cfg.Users.GetBalanceStrict(r.Context(), pubkeyHex)
		if errors.Is(err, users.ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, errors.New("user not found"))
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]*big.Int{"balance": balance})
	}
}

// relayInfoHandler serves the static NIP-11 document when asked for
// application/nostr+json, and a plain 404 otherwise — it carries no
// admission-pipeline logic.
func relayInfoHandler(info nip11.RelayInformationDocument) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/nostr+json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/nostr+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(info)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		payload = []byte(fmt.Sprintf("{\"error\":%q}", message))
	}
	_, _ = w.Write(payload)
}
