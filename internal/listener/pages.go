package listener

import (
	"html/template"
	"net/http"
)

type page struct {
	Title   string
	Heading string
	Body    string
	Color   template.CSS
}

var (
	landingPage = page{
		Title:   "Designer sign-in",
		Heading: "Signing in",
		Body:    "Complete the sign-in in this window. Designer will pick up the result automatically.",
		Color:   "#4a6cf7",
	}
	completePage = page{
		Title:   "Designer sign-in",
		Heading: "Authentication Successful",
		Body:    "You can close this window and return to Designer.",
		Color:   "#48bb78",
	}
	cancelledPage = page{
		Title:   "Designer sign-in",
		Heading: "Sign-in Cancelled",
		Body:    "The sign-in was cancelled. You can close this window.",
		Color:   "#a0aec0",
	}
	timedOutPage = page{
		Title:   "Designer sign-in",
		Heading: "Sign-in Timed Out",
		Body:    "The sign-in took too long. Close this window and try again from Designer.",
		Color:   "#ed8936",
	}
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
           display: flex; justify-content: center; align-items: center; height: 100vh;
           margin: 0; background: #f5f6f8; }
    .card { text-align: center; padding: 40px; background: white; border-radius: 12px;
            box-shadow: 0 4px 12px rgba(0,0,0,0.1); }
    h1 { color: {{.Color}}; margin-bottom: 16px; }
    p { color: #4a5568; }
  </style>
</head>
<body>
  <div class="card">
    <h1>{{.Heading}}</h1>
    <p>{{.Body}}</p>
  </div>
</body>
</html>
`))

func renderPage(w http.ResponseWriter, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = pageTemplate.Execute(w, p)
}
