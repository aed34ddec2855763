package httpapi

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed web/shell.html web/assets
var webFS embed.FS

var shellTmpl = template.Must(template.ParseFS(webFS, "web/shell.html"))

type pageData struct {
	Page      string
	Title     string
	APIPrefix string
	ShowNav   bool
}

var pages = map[string]pageData{
	"/":                 {Page: "workspace", Title: "Workspace", ShowNav: true},
	"/login":            {Page: "login", Title: "Log in"},
	"/register":         {Page: "register", Title: "Register"},
	"/pending-approval": {Page: "pending", Title: "Awaiting approval"},
	"/settings":         {Page: "settings", Title: "Settings", ShowNav: true},
	"/admin/users":      {Page: "users", Title: "Users", ShowNav: true},
}

func (a *API) registerPages() {
	assets, err := fs.Sub(webFS, "web/assets")
	if err != nil {
		panic(err)
	}
	a.mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(assets))))
	a.mux.HandleFunc("/", a.servePage)
}

func (a *API) servePage(w http.ResponseWriter, r *http.Request) {
	data, ok := pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	data.APIPrefix = a.gate.APIPrefix
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := shellTmpl.Execute(w, data); err != nil {
		handleError(w, r, err)
	}
}
