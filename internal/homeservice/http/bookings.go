package http

import (
	"net/http"

	"fixitBack/internal/apierror"
	"fixitBack/internal/homeservice/booking"
)

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req booking.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	v, err := s.svc.Bookings.Create(ctx, who, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	v, err := s.svc.Bookings.Get(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) cancelBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
			return
		}
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	v, err := s.svc.Bookings.Cancel(ctx, who, id, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	v, err := s.svc.Bookings.UpdateStatus(ctx, who, id, req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	offers, err := s.svc.Bookings.ListBroadcasts(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"broadcasts": offers})
}

func (s *Server) respondBroadcast(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	res, err := s.svc.Responder.Respond(ctx, who, id, req.Action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) settleBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if !who.IsAdmin() {
		writeError(w, http.StatusForbidden, apierror.CodeForbidden, "admin access only")
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	outcome, err := s.svc.Settler.SettleIfEligible(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"booking_id": id, "outcome": outcome})
}
