package genai

import (
	"fmt"
	"strings"

	"github.com/mvellano/pulsecheck/internal/store"
)

const questionSystemPrompt = `You design short wellbeing check-in surveys.
Given a topic and the answers collected so far, produce the next batch of
questions as JSON: {"questions": [{"id": "...", "type": "boolean"|"scale",
"label": "...", "minLabel": "...", "maxLabel": "..."}]}. Scale questions run
0-10. Do not repeat ground already covered by earlier answers. Three to five
questions per batch. Respond with JSON only.`

const summarySystemPrompt = `You summarize completed wellbeing check-ins.
Given the topic and every recorded answer, respond with JSON only:
{"summary": "...", "insights": ["..."], "recommendations": ["..."]}.`

const chatSystemPrompt = `You answer follow-up questions about a completed
wellbeing check-in. Ground every reply in the recorded answers and the
summary. Keep replies short and plain-text.`

func buildQuestionPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if len(req.Answers) == 0 {
		b.WriteString("No answers recorded yet; this is the first round.\n")
		return b.String()
	}
	b.WriteString("Answers so far, in order:\n")
	writeAnswers(&b, req.Answers)
	return b.String()
}

func buildSummaryPrompt(req SummarizeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	b.WriteString("Recorded answers, in order:\n")
	writeAnswers(&b, req.Answers)
	return b.String()
}

func buildChatContext(req ChatRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Summary != nil {
		fmt.Fprintf(&b, "Summary: %s\n", req.Summary.Summary)
		for _, ins := range req.Summary.Insights {
			fmt.Fprintf(&b, "Insight: %s\n", ins)
		}
		for _, rec := range req.Summary.Recommendations {
			fmt.Fprintf(&b, "Recommendation: %s\n", rec)
		}
	}
	return b.String()
}

func writeAnswers(b *strings.Builder, answers []store.Answer) {
	for i, a := range answers {
		label := a.Question.Label
		if label == "" {
			label = a.Question.ID
		}
		fmt.Fprintf(b, "%d. %s -> %s\n", i+1, label, a.Value)
	}
}
