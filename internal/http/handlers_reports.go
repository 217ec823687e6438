package http

import "net/http"

// All report endpoints accept as_of=YYYY-MM-DD to compute "today" relative
// windows as of a past day.

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	today, err := ParseToday(r.URL.Query(), s.today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dash, err := s.reports.Dashboard(r.Context(), today)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(dash).Write(w)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today, err := ParseToday(q, s.today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	query, err := ParseSpendingQuery(q, today)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.reports.Spending(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today, err := ParseToday(q, s.today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	query, err := ParsePeriodsQuery(q, today)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.reports.Periods(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handleNetWorthReport(w http.ResponseWriter, r *http.Request) {
	g, err := parseGranularity(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.reports.NetWorth(r.Context(), g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}
