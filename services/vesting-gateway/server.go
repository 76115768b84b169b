package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vestchain/core/state"
	"vestchain/crypto"
	gatewayauth "vestchain/gateway/auth"
	"vestchain/native/vesting"
	"vestchain/observability/metrics"
)

// Server exposes the vesting engine over HTTP. Every mutating route is
// authenticated with the gateway HMAC scheme; the caller address inside the
// request body names the on-ledger identity the operation runs as.
type Server struct {
	auth    *gatewayauth.Authenticator
	engine  *vesting.Engine
	ledger  *state.Manager
	log     *slog.Logger
	metrics *metrics.VestingMetrics
	router  chi.Router
}

func NewServer(auth *gatewayauth.Authenticator, engine *vesting.Engine, ledger *state.Manager, log *slog.Logger) *Server {
	s := &Server{
		auth:    auth,
		engine:  engine,
		ledger:  ledger,
		log:     log,
		metrics: metrics.Vesting(),
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/schedules", func(r chi.Router) {
		r.Post("/", s.handleInitialize)
		r.Get("/{token}", s.handleGetSchedule)
		r.Post("/{token}/claim", s.handleClaim)
		r.Post("/{token}/sweep", s.handleSweep)
		r.Post("/{token}/admin", s.handleChangeAdmin)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type beneficiaryPayload struct {
	Address     string `json:"address"`
	Allocated   uint64 `json:"allocated"`
	StartTime   int64  `json:"startTime"`
	CliffMonths uint8  `json:"cliffMonths"`
	TotalMonths uint8  `json:"totalMonths"`
}

type initializeRequest struct {
	Caller        string               `json:"caller"`
	Token         string               `json:"token"`
	TotalAmount   uint64               `json:"totalAmount"`
	Decimals      uint8                `json:"decimals"`
	Beneficiaries []beneficiaryPayload `json:"beneficiaries"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type changeAdminRequest struct {
	Caller   string `json:"caller"`
	NewAdmin string `json:"newAdmin"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	body, principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	beneficiaries := make([]vesting.Beneficiary, 0, len(req.Beneficiaries))
	for _, b := range req.Beneficiaries {
		addr, err := decodeAddr(b.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid beneficiary address")
			return
		}
		beneficiaries = append(beneficiaries, vesting.Beneficiary{
			Addr:        addr,
			Allocated:   b.Allocated,
			StartTime:   b.StartTime,
			CliffMonths: b.CliffMonths,
			TotalMonths: b.TotalMonths,
		})
	}
	sched, err := s.engine.Initialize(caller, req.Token, beneficiaries, req.TotalAmount, req.Decimals)
	s.metrics.ObserveOperation("initialize", err)
	if err != nil {
		s.writeEngineError(w, r, principal, "initialize", err)
		return
	}
	s.metrics.IncSchedules()
	s.logOp(r, principal, "initialize", "token", sched.Token, "beneficiaries", len(sched.Beneficiaries))
	writeJSON(w, http.StatusCreated, schedulePayload(sched))
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.engine.Schedule(chi.URLParam(r, "token"))
	if err != nil {
		s.writeEngineError(w, r, nil, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, schedulePayload(sched))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	body, principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	token := chi.URLParam(r, "token")
	amount, err := s.engine.Claim(caller, token)
	s.metrics.ObserveOperation("claim", err)
	if err != nil {
		s.writeEngineError(w, r, principal, "claim", err)
		return
	}
	s.metrics.AddClaimed(amount)
	s.logOp(r, principal, "claim", "token", token, "amount", amount)
	writeJSON(w, http.StatusOK, map[string]uint64{"claimed": amount})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	body, principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	token := chi.URLParam(r, "token")
	total, processed, err := s.engine.WithdrawUnclaimed(caller, token)
	s.metrics.ObserveOperation("sweep", err)
	if err != nil {
		s.writeEngineError(w, r, principal, "sweep", err)
		return
	}
	s.metrics.AddSwept(total)
	s.logOp(r, principal, "sweep", "token", token, "total", total, "processed", processed)
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "processed": processed})
}

func (s *Server) handleChangeAdmin(w http.ResponseWriter, r *http.Request) {
	body, principal, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req changeAdminRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	newAdmin, err := decodeAddr(req.NewAdmin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid newAdmin address")
		return
	}
	token := chi.URLParam(r, "token")
	err = s.engine.ChangeAdmin(caller, token, newAdmin)
	s.metrics.ObserveOperation("change_admin", err)
	if err != nil {
		s.writeEngineError(w, r, principal, "change_admin", err)
		return
	}
	s.logOp(r, principal, "change_admin", "token", token, "newAdmin", req.NewAdmin)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) ([]byte, *gatewayauth.Principal, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(gatewayauth.MaxBodyForSignature)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return nil, nil, false
	}
	principal, err := s.auth.Authenticate(r, body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, nil, false
	}
	return body, principal, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, principal *gatewayauth.Principal, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logOp(r, principal, op, "error", err.Error())
	}
	writeError(w, status, err.Error())
}

func (s *Server) logOp(r *http.Request, principal *gatewayauth.Principal, op string, args ...any) {
	if s.log == nil {
		return
	}
	fields := []any{"op", op, "requestId", uuid.NewString(), "path", r.URL.Path}
	if principal != nil {
		fields = append(fields, "apiKey", principal.APIKey)
	}
	fields = append(fields, args...)
	s.log.Info("vesting operation", fields...)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, vesting.ErrNotFound), errors.Is(err, vesting.ErrBeneficiaryNotFound):
		return http.StatusNotFound
	case errors.Is(err, vesting.ErrUnauthorizedAdmin):
		return http.StatusForbidden
	case errors.Is(err, vesting.ErrCliffNotReached),
		errors.Is(err, vesting.ErrClaimNotAllowed),
		errors.Is(err, vesting.ErrNoUnclaimedTokens),
		errors.Is(err, vesting.ErrInsufficientBalance),
		errors.Is(err, vesting.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, vesting.ErrMathOverflow):
		return http.StatusInternalServerError
	case errors.Is(err, vesting.ErrNoBeneficiaries),
		errors.Is(err, vesting.ErrTooManyBeneficiaries),
		errors.Is(err, vesting.ErrInvalidAmount),
		errors.Is(err, vesting.ErrInvalidDecimals),
		errors.Is(err, vesting.ErrInvalidCliffPeriod),
		errors.Is(err, vesting.ErrInvalidVestingConfig),
		errors.Is(err, vesting.ErrInvalidAllocation),
		errors.Is(err, vesting.ErrInvalidStartTime),
		errors.Is(err, vesting.ErrStartTimeTooFar),
		errors.Is(err, vesting.ErrDuplicateBeneficiary),
		errors.Is(err, vesting.ErrOverAllocation),
		errors.Is(err, vesting.ErrSameAdmin),
		errors.Is(err, vesting.ErrInvalidAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeAddr(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func schedulePayload(s *vesting.Schedule) map[string]any {
	beneficiaries := make([]map[string]any, 0, len(s.Beneficiaries))
	for _, b := range s.Beneficiaries {
		beneficiaries = append(beneficiaries, map[string]any{
			"address":     crypto.NewAddress(crypto.VestPrefix, b.Addr[:]).String(),
			"allocated":   b.Allocated,
			"claimed":     b.Claimed,
			"startTime":   b.StartTime,
			"cliffMonths": b.CliffMonths,
			"totalMonths": b.TotalMonths,
		})
	}
	return map[string]any{
		"authority":     crypto.NewAddress(crypto.VestPrefix, s.Authority[:]).String(),
		"token":         s.Token,
		"decimals":      s.Decimals,
		"totalAmount":   s.TotalAmount,
		"beneficiaries": beneficiaries,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
