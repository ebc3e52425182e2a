package main

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// frontend serves the built web UI. Paths that are not a file fall back
// to index.html for client-side routing. Without a built UI, `/` answers
// with a short description of the API.
func (a *api) frontend(w http.ResponseWriter, req *http.Request) {
	dir := a.cfg.Paths.FrontendDir
	index := filepath.Join(dir, "index.html")
	if dir == "" || !isFile(index) {
		if req.URL.Path != "/" {
			writeJSON(w, http.StatusNotFound, result{Error: http.StatusText(http.StatusNotFound)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "GrblWheel API",
			"health":  "/api/health",
		})
		return
	}

	name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+req.URL.Path)))
	if req.URL.Path != "/" && isFile(name) {
		http.FileServer(http.Dir(dir)).ServeHTTP(w, req)
		return
	}
	http.ServeFile(w, req, index)
}
