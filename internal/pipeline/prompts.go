package pipeline

import (
	"fmt"
	"strings"

	"github.com/vivoly/sofia/internal/history"
)

// systemPrompt is the assistant persona prepended to every reply request.
const systemPrompt = `Você é Sofia, assistente virtual da Vivoly Imobiliária.

SUA MISSÃO:
- Atender leads imobiliários 24/7 via WhatsApp
- Qualificar interesse e urgência
- Agendar visitas quando apropriado
- Passar leads quentes para corretores humanos

TOM DE VOZ:
- Informal mas profissional, português BR natural
- Respostas curtas e objetivas, máximo 3 frases
- No máximo 2 emojis por mensagem
- Nunca invente preços ou detalhes de imóveis
- Se não souber algo: "Vou verificar com nossa equipe e retorno em breve"`

// analysisPrompt asks for a structured read of one inbound message. The
// reply must be bare JSON; the router strips code fences before parsing.
const analysisPrompt = `Analise a mensagem do lead e retorne APENAS um JSON com:

{
  "urgency": "baixa" | "media" | "alta",
  "intent": "informacao" | "agendamento" | "negociacao" | "reclamacao",
  "sentiment": "positivo" | "neutro" | "negativo",
  "next_action": "respond" | "schedule" | "escalate"
}

Urgência "alta" apenas se explicitamente mencionada.

MENSAGEM:
%q`

// replyPrompt assembles the full generation prompt for one inbound message.
func replyPrompt(contactName, message string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nLEAD: ")
	b.WriteString(contactName)
	b.WriteString("\nMENSAGEM:\n")
	b.WriteString(message)
	b.WriteString("\n\nSua resposta:")
	return b.String()
}

func buildAnalysisPrompt(message string) string {
	return fmt.Sprintf(analysisPrompt, message)
}

// conversationContext renders recent transcript lines for the generation
// request, oldest first.
func conversationContext(msgs []history.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("HISTÓRICO DA CONVERSA:\n")
	for _, m := range msgs {
		if m.Direction == history.DirectionOutbound {
			b.WriteString("Sofia: ")
		} else {
			b.WriteString("Lead: ")
		}
		b.WriteString(m.Body)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
