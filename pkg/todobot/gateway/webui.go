package gateway

import (
	"embed"
	"net/http"
)

//go:embed web/index.html web/chatbot.html
var webFS embed.FS

// handleIndex serves the task dashboard.
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		g.writeError(w, "not found", http.StatusNotFound)
		return
	}
	g.servePage(w, "web/index.html")
}

// handleChatbot serves the chat test page, which posts webhook-shaped
// payloads straight at the webhook endpoint.
func (g *Gateway) handleChatbot(w http.ResponseWriter, r *http.Request) {
	g.servePage(w, "web/chatbot.html")
}

func (g *Gateway) servePage(w http.ResponseWriter, name string) {
	data, err := webFS.ReadFile(name)
	if err != nil {
		g.writeError(w, "page not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}
