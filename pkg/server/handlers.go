package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-dev/srasm/pkg/explain"
)

// handleExplain serves POST /explain-error. A backend failure is answered
// with explain.Unavailable and status 200; only bad requests are errors.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	var req explain.Request
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty request body")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.ErrorMessage) == "" {
		writeError(w, http.StatusBadRequest, "errorMessage is required")
		return
	}

	key, err := requestKey(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid stateSnapshot: %v", err))
		return
	}

	// Identical concurrent requests share one backend call. The call runs
	// detached from any single caller so one client hanging up does not
	// fail the others.
	v, _, shared := s.inflight.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.ExplainTimeout)
		defer cancel()

		text, err := s.explainer.Explain(ctx, req)
		if err != nil || strings.TrimSpace(text) == "" {
			if err == nil {
				err = explain.ErrEmpty
			}
			s.logger.Warn("explanation failed", "error", err)
			return explain.Unavailable, nil
		}
		return text, nil
	})
	if shared {
		s.logger.Debug("explanation shared with concurrent request")
	}

	writeJSON(w, http.StatusOK, explain.Response{Explanation: v.(string)})
}

// requestKey identifies identical explanation requests.
func requestKey(req explain.Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// handleState serves GET /state: every slice of the attached store.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no store attached")
		return
	}
	snapshot := s.store.Snapshot()
	if _, err := json.Marshal(snapshot); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("snapshot is not JSON encodable: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
