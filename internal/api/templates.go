package api

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/aggregate"
	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/pipeline"
)

type pageData struct {
	Query string
	Error string
	Run   *pipeline.Run
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"parties": func(s string) []crawler.Party {
		out, err := aggregate.Decode[crawler.Party](s)
		if err != nil {
			return nil
		}
		return out
	},
}).Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Consulta de processos</title></head>
<body>
<h1>Consulta de processos</h1>
<form method="post" action="/search">
  <label for="name">Nome da parte</label>
  <input type="text" id="name" name="name" value="{{.Query}}" minlength="3" required>
  <button type="submit">Buscar</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{with .Run}}
<p class="summary">{{len .Records}} processos encontrados para "{{.Query}}"</p>
<table>
<thead><tr><th>Processo</th><th>Tribunal</th><th>Classe</th><th>Assunto</th><th>Foro</th><th>Vara</th><th>Juiz</th><th>Distribuição</th><th>Valor da ação</th><th>Partes</th></tr></thead>
<tbody>
{{range .Records}}<tr>
<td><a href="{{.Link}}">{{.ProcessID}}</a></td><td>{{.SourceTag}}</td><td>{{.Class}}</td><td>{{.Subject}}</td><td>{{.Forum}}</td><td>{{.Section}}</td><td>{{.Judge}}</td><td>{{.DistributionDate}}</td><td>{{.ClaimedValue}}</td>
<td>{{range parties .Parties}}{{.Role}} {{.Name}}<br>{{end}}</td>
</tr>
{{end}}</tbody>
</table>
{{end}}
</body>
</html>
`))

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("render page failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
}
