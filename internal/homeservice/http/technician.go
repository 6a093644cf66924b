package http

import (
	"net/http"

	"fixitBack/internal/apierror"
)

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "lat and lon are required")
		return
	}
	if err := s.svc.Availability.ReportLocation(r.Context(), who, *req.Lat, *req.Lon); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

func (s *Server) goOffline(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if err := s.svc.Availability.GoOffline(r.Context(), who); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

func (s *Server) technicianWS(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if !who.IsTechnician() {
		writeError(w, http.StatusForbidden, apierror.CodeForbidden, "technician access only")
		return
	}
	s.svc.Technicians.ServeWS(w, r, who.ProfileID)
}

func (s *Server) customerWS(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	if !who.IsCustomer() {
		writeError(w, http.StatusForbidden, apierror.CodeForbidden, "customer access only")
		return
	}
	s.svc.Customers.ServeWS(w, r, who.UserID)
}
