package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"payslip-scraper/internal/jobs"
	"strconv"
)

const maxBodySize = 64 << 10

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the JSON API:
//
//	POST /api/scrape       start a job (JSON or form body)
//	GET  /api/scrape/{id}  poll a job
//	GET  /api/jobs         list live jobs
//	GET  /healthz          liveness
func (s Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scrape", s.handleSubmit)
	mux.HandleFunc("GET /api/scrape/{id}", s.handlePoll)
	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (s Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	in, err := decodeSubmit(w, r)
	if err != nil {
		writeJson(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	job, err := s.Submit(in)
	if errors.Is(err, jobs.ErrInvalidRequest) {
		writeJson(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeJson(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJson(w, http.StatusAccepted, job)
}

func (s Service) handlePoll(w http.ResponseWriter, r *http.Request) {
	job, err := s.Poll(r.PathValue("id"))
	if errors.Is(err, ErrJobNotFound) {
		writeJson(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		writeJson(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJson(w, http.StatusOK, job)
}

func (s Service) handleList(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, s.List())
}

func decodeSubmit(w http.ResponseWriter, r *http.Request) (jobs.SubmitInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var in jobs.SubmitInput
		err := json.NewDecoder(r.Body).Decode(&in)
		if err != nil {
			return jobs.SubmitInput{}, fmt.Errorf("decode body: %w", err)
		}
		return in, nil
	}

	err := r.ParseForm()
	if err != nil {
		return jobs.SubmitInput{}, fmt.Errorf("parse form: %w", err)
	}
	in := jobs.SubmitInput{
		Identity: r.Form.Get("identity"),
		Secret:   r.Form.Get("secret"),
		Subject:  r.Form.Get("subject"),
		Years:    jobs.Selection(r.Form.Get("years")),
		Months:   jobs.Selection(r.Form.Get("months")),
	}
	in.WaitAuthSeconds, err = formInt(r, "waitAuthSeconds")
	if err != nil {
		return jobs.SubmitInput{}, err
	}
	in.PollIntervalSeconds, err = formInt(r, "pollIntervalSeconds")
	if err != nil {
		return jobs.SubmitInput{}, err
	}
	return in, nil
}

func formInt(r *http.Request, key string) (int, error) {
	value := r.Form.Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, value)
	}
	return n, nil
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
