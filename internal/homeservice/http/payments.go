package http

import (
	"io"
	"net/http"

	"fixitBack/internal/apierror"
	"fixitBack/internal/homeservice/settlement"
)

// SignatureHeader carries the gateway's webhook HMAC.
const SignatureHeader = "X-Webhook-Signature"

func (s *Server) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	order, err := s.svc.Payments.CreateOrder(ctx, who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req settlement.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	res, err := s.svc.Payments.Verify(ctx, who, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "unreadable body")
		return
	}
	valid, err := s.svc.Payments.RecordWebhook(r.Context(), r.Header.Get(SignatureHeader), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !valid {
		writeError(w, http.StatusUnauthorized, apierror.CodeValidation, "invalid signature")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
