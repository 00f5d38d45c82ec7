package handlers

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DemoHandler serves the informational and sample user routes.
type DemoHandler struct{}

func NewDemoHandler() *DemoHandler { return &DemoHandler{} }

type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *DemoHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the readaloud API!"})
}

func (h *DemoHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Fetching user with ID: %s", id)})
}

// CreateUser echoes the submitted user. JSON and urlencoded bodies are accepted.
func (h *DemoHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var u User

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		u = User{Name: r.PostForm.Get("name"), Email: r.PostForm.Get("email")}
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "User created", "user": u})
}
