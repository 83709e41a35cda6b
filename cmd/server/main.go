package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/handlers"
	"chat-server/internal/services"
	"chat-server/internal/ws"
	"chat-server/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize the durable store
	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to open store: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)
	roomService := services.NewRoomService(db)

	// The registry and relay are constructed once and injected everywhere.
	registry := ws.NewRegistry()
	relay := ws.NewRelay(db, registry, cfg.Gateway.MaxMessageLen)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService, db)
	roomHandlers := handlers.NewRoomHandlers(roomService, cfg.History)
	wsHandlers := handlers.NewWebSocketHandlers(authService, registry, relay, cfg.Gateway)

	router := setupRoutes(authService, authHandlers, roomHandlers, wsHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handlers.CORSMiddleware(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server started on http://localhost%s", cfg.Server.Addr)
		logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func setupRoutes(authService *auth.Service, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}).Methods(http.MethodGet)

	// Auth routes
	router.HandleFunc("/api/auth/register", authHandlers.Register).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", authHandlers.Login).Methods(http.MethodPost)

	// Authenticated API routes
	api := router.PathPrefix("/api").Subrouter()
	api.Use(handlers.RequireAuth(authService))
	api.HandleFunc("/me", authHandlers.Me).Methods(http.MethodGet)
	api.HandleFunc("/users", authHandlers.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/rooms", roomHandlers.ListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms", roomHandlers.CreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/dm", roomHandlers.OpenDirectRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/join", roomHandlers.JoinRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/leave", roomHandlers.LeaveRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/messages", roomHandlers.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/clear", roomHandlers.ClearHistory).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}", roomHandlers.DeleteRoom).Methods(http.MethodDelete)

	// WebSocket route (credential travels in the connection URL)
	router.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	return router
}
