package analysis

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxInputRunes is how much contract text is sent to the provider
	MaxInputRunes = 4000
	// MaxOutputTokens bounds the completion length
	MaxOutputTokens = 2000
	// Temperature is kept low so repeated analyses stay close
	Temperature = 0.3
)

const systemPrompt = "Sei un avvocato esperto in diritto civile e commerciale italiano. " +
	"Analizza i contratti con precisione tecnica e linguaggio professionale ma accessibile."

const userPromptTemplate = `Analizza questo contratto legale in italiano con la competenza di un avvocato specializzato in diritto civile e commerciale.

TESTO DEL CONTRATTO:
%s

Fornisci un'analisi strutturata in formato JSON con le seguenti chiavi:

{
    "contract_type": "tipo di contratto identificato",
    "parties": "descrizione delle parti coinvolte",
    "duration": "durata del contratto e scadenze principali",
    "key_obligations": "obblighi principali per ciascuna parte",
    "risk_level": "low/medium/high/critical",
    "risk_clauses": [
        {
            "clause": "testo della clausola problematica",
            "risk": "descrizione del rischio legale",
            "severity": "low/medium/high/critical",
            "recommendation": "raccomandazione legale specifica"
        }
    ],
    "deadlines": [
        {
            "description": "descrizione della scadenza",
            "timeframe": "periodo di tempo o data"
        }
    ],
    "summary": "riassunto esecutivo dell'analisi legale"
}

Focus su:
- Clausole penali eccessive
- Squilibri contrattuali
- Rischi di inadempimento
- Clausole vessatorie
- Termini di recesso
- Responsabilità e garanzie
- Compliance GDPR (se applicabile)`

// Truncate keeps the first n runes of text
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// BuildRequest renders the two-role prompt for a contract text
func BuildRequest(model, text string) CompletionRequest {
	return CompletionRequest{
		Model:       model,
		System:      systemPrompt,
		User:        fmt.Sprintf(userPromptTemplate, Truncate(text, MaxInputRunes)),
		MaxTokens:   MaxOutputTokens,
		Temperature: Temperature,
	}
}
