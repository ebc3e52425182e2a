package main

import (
	"encoding/json"
	"errors"
	stdlog "log"
	"net/http"
	"sort"
	"strings"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/grblwheel/config"
	"github.com/mastercactapus/grblwheel/machine"
	"github.com/mastercactapus/grblwheel/machine/grbl"
	"github.com/mastercactapus/grblwheel/store"
)

// SSE channels.
const (
	eventsProgress = "/events/progress"
	eventsState    = "/events/state"
)

var realtimeCommands = map[string]byte{
	"status": '?',
	"hold":   '!',
	"resume": '~',
	"reset":  0x18,
}

type api struct {
	http.Handler

	cfg    *config.Config
	link   *grbl.Link
	files  *store.Dir
	runner *machine.Runner
	macros map[string][]string

	sse *sse.Server
	ws  *hub
}

func newAPI(cfg *config.Config, link *grbl.Link, files *store.Dir) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		cfg:     cfg,
		link:    link,
		files:   files,
		runner:  machine.NewRunner(link, files),
		macros:  make(map[string][]string, len(cfg.Macros)),
		sse: sse.NewServer(&sse.Options{
			Logger: stdlog.New(log.StandardLogger().WriterLevel(log.DebugLevel), "sse: ", 0),
		}),
		ws: newHub(),
	}
	for name, lines := range cfg.Macros {
		a.macros[name] = lines
	}
	a.runner.SetProgressCallback(a.publishProgress)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			log.WithFields(log.Fields{"method": req.Method, "path": req.URL.Path, "remote": req.RemoteAddr}).Debug("request")
			next.ServeHTTP(w, req)
		})
	})

	v1 := r.PathPrefix("/api").Subrouter()
	v1.HandleFunc("/health", a.health).Methods("GET")

	v1.HandleFunc("/serial/ports", a.serialPorts).Methods("GET")
	v1.HandleFunc("/serial/state", a.serialState).Methods("GET")
	v1.HandleFunc("/serial/connect", a.serialConnect).Methods("POST")
	v1.HandleFunc("/serial/disconnect", a.serialDisconnect).Methods("POST")
	v1.HandleFunc("/serial/send", a.serialSend).Methods("POST")
	v1.HandleFunc("/serial/realtime", a.serialRealtime).Methods("POST")

	v1.HandleFunc("/macros", a.listMacros).Methods("GET")
	v1.HandleFunc("/macros/{name}/run", a.runMacro).Methods("POST")

	v1.HandleFunc("/files", a.listFiles).Methods("GET")
	v1.HandleFunc("/files/upload", a.uploadFile).Methods("POST")
	v1.HandleFunc("/files/{name}/lines", a.fileLines).Methods("GET")
	v1.HandleFunc("/files/{name}", a.deleteFile).Methods("DELETE")

	v1.HandleFunc("/job/start", a.jobStart).Methods("POST")
	v1.HandleFunc("/job/status", a.jobStatus).Methods("GET")
	v1.HandleFunc("/job/pause", a.jobAction(a.runner.Pause)).Methods("POST")
	v1.HandleFunc("/job/resume", a.jobAction(a.runner.Resume)).Methods("POST")
	v1.HandleFunc("/job/stop", a.jobAction(a.runner.Stop)).Methods("POST")
	v1.HandleFunc("/job/ws", a.jobSocket)

	r.PathPrefix("/events/").Handler(a.sse)
	r.PathPrefix("/").HandlerFunc(a.frontend).Methods("GET", "HEAD")

	return a
}

// Close stops the event streams.
func (a *api) Close() {
	a.ws.Close()
	a.sse.Shutdown()
}

type result struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
	Name     string `json:"name,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.WithError(err).Warn("encode response")
	}
}

func readJSON(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	if req.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(req.Body).Decode(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, result{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (a *api) publishProgress(p machine.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		log.WithError(err).Error("marshal progress")
		return
	}
	a.sse.SendMessage(eventsProgress, sse.SimpleMessage(string(data)))
	a.ws.Broadcast(progressMessage(p))
}

func (a *api) publishState(s grbl.State) {
	data, err := json.Marshal(s)
	if err != nil {
		log.WithError(err).Error("marshal state")
		return
	}
	a.sse.SendMessage(eventsState, sse.SimpleMessage(string(data)))
}

func (a *api) health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "grblwheel"})
}

func (a *api) serialPorts(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ports": a.link.ListPorts()})
}

func (a *api) serialState(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.link.State())
}

func (a *api) serialConnect(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Port string `json:"port"`
		Baud int    `json:"baud"`
	}
	if !readJSON(w, req, &body) {
		return
	}
	if body.Port == "" {
		writeJSON(w, http.StatusOK, result{Error: "port required"})
		return
	}
	if body.Baud <= 0 {
		body.Baud = a.cfg.Serial.Baud
	}
	err := a.link.Connect(body.Port, body.Baud)
	a.publishState(a.link.State())
	if err != nil {
		writeJSON(w, http.StatusOK, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true})
}

func (a *api) serialDisconnect(w http.ResponseWriter, req *http.Request) {
	a.link.Disconnect()
	a.publishState(a.link.State())
	writeJSON(w, http.StatusOK, result{OK: true})
}

func (a *api) serialSend(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if !readJSON(w, req, &body) {
		return
	}
	body.Command = strings.TrimSpace(body.Command)
	if body.Command == "" {
		writeJSON(w, http.StatusOK, result{Error: "command required"})
		return
	}
	resp, err := a.link.SendLine(body.Command)
	writeJSON(w, http.StatusOK, result{OK: err == nil, Response: resp})
}

func (a *api) serialRealtime(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if !readJSON(w, req, &body) {
		return
	}
	b, ok := realtimeCommands[strings.ToLower(body.Command)]
	if !ok {
		writeJSON(w, http.StatusOK, result{Error: "unknown realtime command: " + body.Command})
		return
	}
	err := a.link.WriteRealtime(b)
	if err != nil {
		writeJSON(w, http.StatusOK, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true})
}

func (a *api) listMacros(w http.ResponseWriter, req *http.Request) {
	names := make([]string, 0, len(a.macros))
	for name := range a.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]interface{}{"macros": names})
}

func (a *api) runMacro(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	lines, ok := a.macros[name]
	if !ok {
		writeJSON(w, http.StatusOK, result{Message: "Unknown macro: " + name})
		return
	}
	msg, err := machine.RunMacro(a.link, lines)
	writeJSON(w, http.StatusOK, result{OK: err == nil, Message: msg})
}

func (a *api) listFiles(w http.ResponseWriter, req *http.Request) {
	files, err := a.files.List()
	if err != nil {
		log.WithError(err).Error("list files")
		writeJSON(w, http.StatusInternalServerError, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (a *api) uploadFile(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, store.MaxFileSize+1<<20)
	f, hdr, err := req.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, result{Error: "file required"})
		return
	}
	defer f.Close()

	name, ok := store.SafeName(hdr.Filename)
	if !ok {
		writeJSON(w, http.StatusBadRequest, result{Error: store.ErrInvalidName.Error()})
		return
	}
	err = a.files.Save(name, f)
	if err != nil {
		log.WithError(err).WithField("name", name).Warn("save upload")
		writeJSON(w, http.StatusBadRequest, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true, Name: name})
}

func (a *api) fileLines(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	lines, err := a.files.Lines(name)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, result{Error: machine.MsgFileNotFound})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":  name,
		"lines": lines,
		"count": len(lines),
	})
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	err := a.files.Delete(mux.Vars(req)["name"])
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, result{Error: "File not found or invalid"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true})
}

// startJob starts filename on the shared runner.
func (a *api) startJob(filename string, startLine int) error {
	if filename == "" {
		return errors.New("filename required")
	}
	if startLine < 1 {
		startLine = 1
	}
	_, err := a.runner.Start(filename, startLine)
	return err
}

func (a *api) jobStart(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Filename  string `json:"filename"`
		StartLine int    `json:"start_line"`
	}
	if !readJSON(w, req, &body) {
		return
	}
	err := a.startJob(body.Filename, body.StartLine)
	if err != nil {
		writeJSON(w, http.StatusOK, result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result{OK: true})
}

func (a *api) jobStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, a.runner.Progress())
}

func (a *api) jobAction(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		fn()
		writeJSON(w, http.StatusOK, result{OK: true})
	}
}
