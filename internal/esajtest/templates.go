package esajtest

import (
	"html/template"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

type listingData struct {
	Processes []Process
	Next      string
	Disabled  bool
}

type fieldRow struct {
	ID    string
	Value string
}

type detailData struct {
	Fields         []fieldRow
	AllParties     []crawler.Party
	HasAllParties  bool
	PrimaryParties []crawler.Party
	Movements      []crawler.MovementEntry
}

var fieldIDs = map[crawler.Field]string{
	crawler.FieldClass:            "classeProcesso",
	crawler.FieldSubject:          "assuntoProcesso",
	crawler.FieldForum:            "foroProcesso",
	crawler.FieldSection:          "varaProcesso",
	crawler.FieldJudge:            "juizProcesso",
	crawler.FieldDistributionDate: "dataHoraDistribuicaoProcesso",
	crawler.FieldControlNumber:    "numeroControleProcesso",
	crawler.FieldArea:             "areaProcesso",
	crawler.FieldClaimedValue:     "valorAcaoProcesso",
}

func newDetailData(p Process) detailData {
	d := detailData{
		AllParties:     p.AllParties,
		HasAllParties:  p.AllParties != nil,
		PrimaryParties: p.PrimaryParties,
		Movements:      p.Movements,
	}
	for _, f := range crawler.DetailFields {
		if v, ok := p.Fields[f]; ok {
			d.Fields = append(d.Fields, fieldRow{ID: fieldIDs[f], Value: v})
		}
	}
	return d
}

var openTemplate = template.Must(template.New("open").Parse(`<!DOCTYPE html>
<html><body>
<form id="formConsulta" action="/cpopg/search.do" method="get">
  <select id="cbPesquisa" name="cbPesquisa">
    <option value="NUMPROC" selected>Número do Processo</option>
    <option value="NMPARTE">Nome da parte</option>
    <option value="DOCPARTE">Documento da Parte</option>
  </select>
  <input id="campo_NMPARTE" name="dadosConsulta.valorConsulta" type="text" value="">
  <input id="botaoConsultarProcessos" type="submit" value="Consultar">
</form>
</body></html>`))

var emptyTemplate = template.Must(template.New("empty").Parse(`<!DOCTYPE html>
<html><body>
<div id="spwTabelaMensagem"><div class="alert alert-danger">Não existem informações disponíveis para os parâmetros informados.</div></div>
</body></html>`))

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html><body>
<ul id="listagemDeProcessos">
{{range .Processes}}
  <li>
  <div class="row unj-ai-c home__lista-de-processos">
    <div class="col-md-3"><a class="linkProcesso" href="/cpopg/show.do?processo.codigo={{.ID}}">{{.ID}}</a></div>
    {{range .Parties}}
    <div class="col-md-3"><span class="tipoDeParticipacao">{{.Role}}:</span> <div class="nomeParte">{{.Name}}</div></div>
    {{end}}
  </div>
  </li>
{{end}}
</ul>
<div class="unj-pagination">
{{if .Next}}<a class="unj-pagination__next" href="{{.Next}}">&gt;</a>{{else if .Disabled}}<a class="unj-pagination__next disabled" href="#">&gt;</a>{{end}}
</div>
</body></html>`))

var detailTemplate = template.Must(template.New("detail").Parse(`<!DOCTYPE html>
<html><body>
<div class="unj-entity-header">
{{range .Fields}}  <span id="{{.ID}}">{{.Value}}</span>
{{end}}
<a id="botaoExpandirDadosSecundarios" href="#" class="unj-link-collapse">Mais</a>
</div>
{{if .HasAllParties}}<a id="linkpartes" href="#">Exibir todas as partes</a>
<table id="tableTodasPartes">
{{range .AllParties}}<tr class="fundoClaro"><td><span class="tipoDeParticipacao">{{.Role}}</span></td><td class="nomeParteEAdvogado">{{.Name}}</td></tr>
{{end}}</table>{{end}}
<table id="tablePartesPrincipais">
{{range .PrimaryParties}}<tr class="fundoClaro"><td><span class="tipoDeParticipacao">{{.Role}}</span></td><td class="nomeParteEAdvogado">{{.Name}}</td></tr>
{{end}}<tr><td colspan="2">Representantes omitidos</td></tr>
</table>
<table><tbody id="tabelaUltimasMovimentacoes">
{{range .Movements}}<tr><td class="dataMovimentacao">{{.Date}}</td><td class="descricaoMovimentacao">{{.Description}}</td></tr>
{{end}}</tbody></table>
</body></html>`))
