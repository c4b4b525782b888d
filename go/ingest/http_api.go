package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/triagekit/triage/go/broker"
	"github.com/triagekit/triage/go/ticket"
)

// NewAPI builds the HTTP surface of the triage engine.
func NewAPI(b *broker.Broker, ingester *Ingester) http.Handler {
	var api = &httpAPI{broker: b, ingester: ingester}

	var r = chi.NewRouter()
	r.Post("/tickets", api.submitTicket)
	r.Get("/tickets/next", api.nextTicket)
	r.Get("/tickets/{id}/status", api.ticketStatus)
	r.Get("/queue", api.listQueue)
	r.Get("/health", api.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type httpAPI struct {
	broker   *broker.Broker
	ingester *Ingester
}

func (a *httpAPI) submitTicket(w http.ResponseWriter, r *http.Request) {
	var sub ticket.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var accepted, err = a.ingester.Admit(r.Context(), sub)
	switch {
	case errors.Is(err, ticket.ErrNoText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrOverloaded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case err != nil:
		log.WithFields(log.Fields{"err": err, "client": r.RemoteAddr}).Error("ticket admission failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusAccepted, accepted)
	}
}

func (a *httpAPI) ticketStatus(w http.ResponseWriter, r *http.Request) {
	var status, err = a.broker.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.WithField("err", err).Error("reading ticket status")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *httpAPI) nextTicket(w http.ResponseWriter, r *http.Request) {
	var status, err = NextReady(r.Context(), a.broker)
	if err != nil {
		log.WithField("err", err).Error("popping next ready ticket")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "No ready tickets")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *httpAPI) listQueue(w http.ResponseWriter, r *http.Request) {
	var statuses, err = ListQueue(r.Context(), a.broker)
	if err != nil {
		log.WithField("err", err).Error("listing queue")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (a *httpAPI) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("encoding http response")
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
