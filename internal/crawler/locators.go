package crawler

import "fmt"

// FieldLocator binds a classification field to the selector that reads it.
type FieldLocator struct {
	Field    Field
	Selector string
}

// SearchSelectors locate the search form, result listing and pagination.
type SearchSelectors struct {
	SearchPath     string `mapstructure:"search_path"`
	ModeSelect     string `mapstructure:"mode_select"`
	ModeValue      string `mapstructure:"mode_value"`
	QueryInput     string `mapstructure:"query_input"`
	ResultLink     string `mapstructure:"result_link"`
	ErrorIndicator string `mapstructure:"error_indicator"`
	ResultBlock    string `mapstructure:"result_block"`
	PartyBlock     string `mapstructure:"party_block"`
	PartyRole      string `mapstructure:"party_role"`
	PartyName      string `mapstructure:"party_name"`
	NextPage       string `mapstructure:"next_page"`
}

// DetailSelectors locate everything read from a process detail page.
type DetailSelectors struct {
	ShowMore            string         `mapstructure:"show_more"`
	AllPartiesToggle    string         `mapstructure:"all_parties_toggle"`
	AllPartiesRows      string         `mapstructure:"all_parties_rows"`
	PrimaryPartiesRows  string         `mapstructure:"primary_parties_rows"`
	PartyRole           string         `mapstructure:"party_role"`
	PartyName           string         `mapstructure:"party_name"`
	MovementRows        string         `mapstructure:"movement_rows"`
	MovementDate        string         `mapstructure:"movement_date"`
	MovementDescription string         `mapstructure:"movement_description"`
	Fields              []FieldLocator `mapstructure:"-"`
}

// DefaultSearchSelectors matches the e-SAJ first-instance search (cpopg).
func DefaultSearchSelectors() SearchSelectors {
	return SearchSelectors{
		SearchPath:     "/cpopg/open.do",
		ModeSelect:     "#cbPesquisa",
		ModeValue:      "NMPARTE",
		QueryInput:     "#campo_NMPARTE",
		ResultLink:     "a.linkProcesso",
		ErrorIndicator: "div.alert-danger",
		ResultBlock:    ".home__lista-de-processos",
		PartyBlock:     "div.col-md-3",
		PartyRole:      ".tipoDeParticipacao",
		PartyName:      ".nomeParte",
		NextPage:       "a.unj-pagination__next",
	}
}

// DefaultFieldSelectors maps each classification field to its e-SAJ element id.
func DefaultFieldSelectors() map[string]string {
	return map[string]string{
		string(FieldClass):            "#classeProcesso",
		string(FieldSubject):          "#assuntoProcesso",
		string(FieldForum):            "#foroProcesso",
		string(FieldSection):          "#varaProcesso",
		string(FieldJudge):            "#juizProcesso",
		string(FieldDistributionDate): "#dataHoraDistribuicaoProcesso",
		string(FieldControlNumber):    "#numeroControleProcesso",
		string(FieldArea):             "#areaProcesso",
		string(FieldClaimedValue):     "#valorAcaoProcesso",
	}
}

// DefaultDetailSelectors matches the e-SAJ process detail page (show.do).
func DefaultDetailSelectors() DetailSelectors {
	fields, _ := FieldLocatorsFromMap(DefaultFieldSelectors())
	return DetailSelectors{
		ShowMore:            "#botaoExpandirDadosSecundarios",
		AllPartiesToggle:    "#linkpartes",
		AllPartiesRows:      "table#tableTodasPartes tr",
		PrimaryPartiesRows:  "table#tablePartesPrincipais tr",
		PartyRole:           ".tipoDeParticipacao",
		PartyName:           ".nomeParteEAdvogado",
		MovementRows:        "tbody#tabelaUltimasMovimentacoes tr",
		MovementDate:        ".dataMovimentacao",
		MovementDescription: ".descricaoMovimentacao",
		Fields:              fields,
	}
}

// FieldLocatorsFromMap converts a field→selector map into locators ordered
// like DetailFields. Unknown field names and empty selectors are rejected.
func FieldLocatorsFromMap(m map[string]string) ([]FieldLocator, error) {
	for name, sel := range m {
		if !Field(name).Valid() {
			return nil, fmt.Errorf("unknown detail field %q", name)
		}
		if sel == "" {
			return nil, fmt.Errorf("detail field %q has an empty selector", name)
		}
	}
	out := make([]FieldLocator, 0, len(m))
	for _, f := range DetailFields {
		if sel, ok := m[string(f)]; ok {
			out = append(out, FieldLocator{Field: f, Selector: sel})
		}
	}
	return out, nil
}
