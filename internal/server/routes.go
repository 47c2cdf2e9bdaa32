package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	a := s.app

	// MCP endpoint (JSON-RPC over HTTP)
	if a.MCPHandler != nil {
		mux.Handle("/mcp", a.MCPHandler)
	}

	// Status
	mux.HandleFunc("/api/health", a.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", a.VersionHandler.ServeHTTP)
	mux.HandleFunc("/api/server-health", a.ServerHealthHandler.ServeHTTP)

	// Session
	mux.HandleFunc("/api/session/login", a.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/session/register", a.AuthHandler.HandleRegister)
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, a.AuthHandler.HandleSession, nil, a.AuthHandler.HandleLogout)
	})

	// Portfolio and watchlist
	mux.HandleFunc("/api/portfolio", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, a.PortfolioHandler.HandleList, a.PortfolioHandler.HandleAdd)
	})
	mux.HandleFunc("/api/portfolio/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, nil, nil, a.PortfolioHandler.HandleRemove)
	})
	mux.HandleFunc("/api/watchlist", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, a.PortfolioHandler.HandleWatchlist, a.PortfolioHandler.HandleWatch)
	})
	mux.HandleFunc("/api/watchlist/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, nil, nil, a.PortfolioHandler.HandleUnwatch)
	})
	mux.HandleFunc("/api/dashboard", a.DashboardHandler.ServeHTTP)

	// Scans
	mux.HandleFunc("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:    a.ScanHandler.HandleStatus,
			http.MethodPost:   a.ScanHandler.HandleStart,
			http.MethodDelete: a.ScanHandler.HandleCancel,
		})
	})
	mux.HandleFunc("/api/scan/resume", a.ScanHandler.HandleResume)

	// Research
	mux.HandleFunc("/api/analyze/{symbol}", a.MarketHandler.HandleAnalyze)
	mux.HandleFunc("/api/market/{ticker}", a.MarketHandler.HandleQuote)
	mux.HandleFunc("/api/compare", a.MarketHandler.HandleCompare)
	mux.HandleFunc("/api/chat", a.MarketHandler.HandleChat)

	// Per-user data
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, a.SettingsHandler.HandleGet, a.SettingsHandler.HandlePut, nil)
	})
	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceCollection(w, r, a.ProfileHandler.HandleGetProfile, a.ProfileHandler.HandleSaveProfile)
	})
	mux.HandleFunc("/api/history", a.ProfileHandler.HandleListHistory)
	mux.HandleFunc("/api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		RouteResourceItem(w, r, a.ProfileHandler.HandleGetHistory, nil, a.ProfileHandler.HandleDeleteHistory)
	})

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

// handleNotFound returns a JSON 404 for unmatched routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
