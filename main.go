package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/pbeck/parley/internal/auth"
	"github.com/pbeck/parley/internal/chat"
	"github.com/pbeck/parley/internal/config"
	"github.com/pbeck/parley/internal/files"
	"github.com/pbeck/parley/internal/handlers"
	"github.com/pbeck/parley/internal/identity"
	"github.com/pbeck/parley/internal/middleware"
	"github.com/pbeck/parley/internal/presence"
	"github.com/pbeck/parley/internal/store/sqlstore"
	"github.com/pbeck/parley/internal/ws"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBSource)
	if err != nil {
		log.Fatal(err)
	}

	fileStore, err := files.NewDiskStore(cfg.FilesDir, cfg.FilesURL)
	if err != nil {
		log.Fatal(err)
	}
	go sweepOrphanedFiles(fileStore, store)

	var tracker *presence.Tracker
	var hubPresence ws.Presence
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		tracker = presence.NewTracker(rdb)
		hubPresence = tracker
	}

	hub := ws.NewHub(store, hubPresence)
	defer hub.Shutdown()

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenDuration)

	service := &chat.Service{
		Store:          store,
		Directory:      identity.NewDirectory(store),
		Files:          fileStore,
		Rooms:          hub,
		ReapEmptyChats: cfg.ReapEmptyChats,
	}

	authHandler := &handlers.AuthHandler{Store: store, Tokens: tokens}
	chatHandler := &handlers.ChatHandler{Service: service}
	fileHandler := &handlers.FileHandler{Files: fileStore}
	presenceHandler := &handlers.PresenceHandler{Tracker: tracker}

	limiter := middleware.NewLimiterStore(cfg.RateLimitPerMinute, 20, 5*time.Minute)
	defer limiter.Stop()
	authed := middleware.Auth(tokens)

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("POST")

	api := r.PathPrefix("/").Subrouter()
	api.Use(authed, limiter.Middleware)
	api.HandleFunc("/users/search", authHandler.SearchUsers).Methods("GET")
	api.HandleFunc("/users/{id}/presence", presenceHandler.GetPresence).Methods("GET")
	api.HandleFunc("/chats", chatHandler.GetChats).Methods("GET")
	api.HandleFunc("/chats/dm", chatHandler.CreateDM).Methods("POST")
	api.HandleFunc("/chats/group", chatHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/chats/{id}", chatHandler.UpdateGroup).Methods("POST")
	api.HandleFunc("/chats/{id}/settings", chatHandler.UpdateSettings).Methods("POST")
	api.HandleFunc("/chats/{id}/members", chatHandler.GetMembers).Methods("GET")
	api.HandleFunc("/chats/{id}/members", chatHandler.AddMember).Methods("POST")
	api.HandleFunc("/chats/{id}/members/{userId}", chatHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/chats/{id}/leave", chatHandler.Leave).Methods("GET")
	api.HandleFunc("/chats/{id}/admin", chatHandler.ToggleAdmin).Methods("POST")
	api.HandleFunc("/chats/{id}/messages", chatHandler.GetMessages).Methods("GET")
	api.HandleFunc("/chats/{id}/messages", chatHandler.PostMessage).Methods("POST")
	api.HandleFunc("/files", fileHandler.Upload).Methods("POST")

	// The socket is server-push only; the room set comes from the store at
	// connect time.
	r.Handle("/ws", authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r, middleware.UserID(r))
	})))

	r.PathPrefix(cfg.FilesURL + "/").Handler(
		http.StripPrefix(cfg.FilesURL+"/", http.FileServer(http.Dir(cfg.FilesDir))))

	log.Println("Starting server on", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, r))
}

// sweepOrphanedFiles reclaims uploads whose second phase never happened:
// stored files old enough that no message, chat, or user references them.
func sweepOrphanedFiles(fileStore *files.DiskStore, store *sqlstore.SQLStore) {
	for range time.Tick(time.Hour) {
		err := fileStore.Sweep(time.Now().Add(-24*time.Hour), func(ref string) bool {
			used, err := store.FileRefInUse(ref)
			// When in doubt, keep the file.
			return err != nil || used
		})
		if err != nil {
			log.Printf("file sweep: %v", err)
		}
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
