// Package prompt builds the grounded prompt sent to the answer generator.
package prompt

import (
	"strings"

	"cleanse/internal/domain"
)

// GroundingRule restricts the model to the supplied context. It is part of
// every prompt regardless of persona or history.
const GroundingRule = "Responda a pergunta do usuário baseando-se única e exclusivamente no contexto fornecido abaixo. Nunca invente informações."

const chunkSeparator = "\n\n---\n\n"

// Assembler fills the fixed instruction template.
type Assembler struct {
	persona  string
	fallback string
}

// New returns an Assembler for the given persona and fallback phrase.
func New(persona, fallback string) *Assembler {
	return &Assembler{persona: strings.TrimSpace(persona), fallback: strings.TrimSpace(fallback)}
}

// Fallback returns the phrase the model must answer with when the context is insufficient.
func (a *Assembler) Fallback() string { return a.fallback }

// FallbackInstruction is the sentence telling the model to use the fallback phrase.
func (a *Assembler) FallbackInstruction() string {
	return `Se a informação não estiver no contexto, diga exatamente "` + a.fallback + `"`
}

// Assemble renders persona, grounding rule, context, history (oldest first)
// and the question.
func (a *Assembler) Assemble(chunks []domain.Chunk, question string, history []domain.Turn) string {
	var b strings.Builder
	if a.persona != "" {
		b.WriteString(a.persona)
		b.WriteString("\n")
	}
	b.WriteString(GroundingRule)
	b.WriteString("\n")
	b.WriteString(a.FallbackInstruction())
	b.WriteString("\n\nContexto:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(c.Text)
	}

	if len(history) > 0 {
		b.WriteString("\n\nHistórico da conversa:\n")
		for _, t := range history {
			b.WriteString(speaker(t.Role))
			b.WriteString(": ")
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\nPergunta:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nResposta:\n")
	return b.String()
}

func speaker(r domain.Role) string {
	if r == domain.RoleAssistant {
		return "Assistente"
	}
	return "Usuário"
}
