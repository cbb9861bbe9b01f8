package httptransport

import "html/template"

// Page templates. The client bundle reads window.__AMBROSIA__ and mounts
// the component named by componentId into #root.
const shellTemplates = `
{{define "shell"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<div id="root" data-component="{{.View.ComponentID}}"><p class="loading">{{.View.LoadingMessage}}</p></div>
<script>window.__AMBROSIA__ = {{.State}};</script>
<script src="{{.BundleURL}}" defer></script>
</body>
</html>{{end}}
{{define "error"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<main class="error">
<h1>{{.Status}}</h1>
<p>{{.Message}}</p>
<a href="/">Back to home</a>
</main>
</body>
</html>{{end}}
`

func parseShell() *template.Template {
	return template.Must(template.New("pages").Parse(shellTemplates))
}
