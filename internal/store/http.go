package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"imagen-mcp/common"
	"imagen-mcp/internal/utils"
)

const shutdownTimeout = 5 * time.Second

// Handler serves the saved files under /images/ and a JSON listing at
// /list-images?limit=n.
func (s *LocalStore) Handler() http.Handler {
	files := http.StripPrefix("/images/", http.FileServer(http.Dir(s.root)))

	mux := http.NewServeMux()
	mux.Handle("/images/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no directory listings
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasSuffix(r.URL.Path, ".tmp") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", utils.GetMimeTypeFromExtension(r.URL.Path))
		files.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/list-images", s.handleList)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type listResponse struct {
	Images []Entry `json:"images"`
}

func (s *LocalStore) handleList(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.List(r.Context(), limit)
	if err != nil {
		common.WithError(err).Error("Failed to list images for HTTP request")
		http.Error(w, "failed to list images", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(listResponse{Images: entries}); err != nil {
		common.WithError(err).Warn("Failed to write image listing")
	}
}

// ServeLocal serves st on addr until ctx is done. It returns nil after a
// clean shutdown.
func ServeLocal(ctx context.Context, addr string, st *LocalStore) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           st.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			common.WithError(err).Warn("Image HTTP server did not shut down cleanly")
		}
	}()

	common.WithFields(map[string]interface{}{
		"addr": ln.Addr().String(),
		"root": st.Root(),
	}).Info("Serving generated images over HTTP")

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
