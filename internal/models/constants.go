package models

const (
	PersonaLegal     = "legal"
	PersonaFinancial = "financial"
	PersonaTechnical = "technical"
	PersonaAcademic  = "academic"
	PersonaGeneral   = "general"

	NoContextFound   = "no relevant context found"
	ContextSeparator = "\n---\n"
)

var Personas = []string{PersonaLegal, PersonaFinancial, PersonaTechnical, PersonaAcademic, PersonaGeneral}

var (
	PersonaPromptTemplate = `Classify the following document excerpt into exactly one of these categories: legal, financial, technical, academic, general.
<document>
%s
</document>
Answer only with the category name and nothing else.
`

	SummaryPromptTemplate = `<document>
%s
</document>
Write a short summary (at most three sentences) of the document above. Answer only with the summary.
`

	AnswerPromptTemplate = `Context:
%s

Query: %s`
)
