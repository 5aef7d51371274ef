package analysis

import (
	"strings"

	"github.com/AnTengye/contractrisk/model"
)

// Checked in order, the first category with a matching keyword wins.
var typeKeywords = []struct {
	contractType model.ContractType
	keywords     []string
}{
	{model.TypePurchase, []string{"compravendita", "vendita", "acquisto"}},
	{model.TypeService, []string{"prestazione", "servizio", "consulenza", "informatici", "software", "sviluppo", "manutenzione"}},
	{model.TypeEmployment, []string{"lavoro", "dipendente", "assunzione"}},
	{model.TypeRental, []string{"locazione", "affitto", "noleggio"}},
	{model.TypeNDA, []string{"riservatezza", "confidenzialità", "nda"}},
	{model.TypePartnership, []string{"partnership", "collaborazione", "joint"}},
	{model.TypeLicense, []string{"licenza", "concessione", "diritti"}},
}

// ClassifyContract picks a contract type by keyword, independent of any AI output
func ClassifyContract(text string) model.ContractType {
	lower := strings.ToLower(text)
	for _, category := range typeKeywords {
		for _, kw := range category.keywords {
			if strings.Contains(lower, kw) {
				return category.contractType
			}
		}
	}
	return model.TypeOther
}
