package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rfplab/proposal-agent/internal/textgen"
)

// Canned responses for the ends of the elicitation loop.
const (
	// CompletionMessage is emitted instead of a question once nothing is missing.
	CompletionMessage = "지금까지 제공해주신 정보를 바탕으로 제안서 개요를 작성하도록 하겠습니다."

	genericQuestion  = "프로젝트에 대해 더 자세히 설명해 주시겠어요?"
	exampleRetrieval = 3
)

// Uncertainty is the result of probing the user's last message for confusion.
type Uncertainty struct {
	IsUncertain  bool   `json:"is_uncertain"`
	Topic        string `json:"topic"`
	NeedsExample bool   `json:"needs_examples"`
}

// NextQuestion produces the assistant's next utterance: an explanatory
// response when the user sounds uncertain, the completion message when
// nothing is missing, otherwise one focused follow-up question. The loop
// never fails outright; generation errors degrade to a fallback question.
func (t *Tracker) NextQuestion(ctx context.Context, info ProjectInfo, messages []textgen.Message) (string, error) {
	analysis, err := t.AnalyzeTurn(ctx, info, messages)
	if err != nil {
		t.logger.Warn().Err(err).Msg("turn analysis failed, using fallback question")
		return t.askFallback(), nil
	}

	topic := analysis.NextTopic
	if topic == "" {
		t.mu.Lock()
		topic = t.topic
		t.mu.Unlock()
	}

	uncertainty := t.probeUncertainty(ctx, lastUserMessage(messages))
	examples := t.retrieveExamples(ctx, topic)

	if uncertainty.IsUncertain {
		question, err := t.generateQuestion(ctx, buildExplanationPrompt(topic, analysis, examples))
		if err != nil {
			return t.askFallback(), nil
		}
		return t.asked(question), nil
	}

	if len(analysis.MissingInfo) == 0 {
		return CompletionMessage, nil
	}

	focus := analysis.MissingInfo[0]
	question, err := t.generateQuestion(ctx, buildQuestionPrompt(focus, analysis, examples))
	if err != nil {
		return t.asked(fmt.Sprintf("%s에 대해 좀 더 자세히 알려주실 수 있나요?", focus)), nil
	}
	return t.asked(question), nil
}

// probeUncertainty asks the generator whether the user's last message needs
// an explanation rather than another question. Failures read as certain.
func (t *Tracker) probeUncertainty(ctx context.Context, message string) Uncertainty {
	if strings.TrimSpace(message) == "" {
		return Uncertainty{}
	}

	raw, err := t.gen.Generate(ctx, textgen.GenerationRequest{
		System: uncertaintySystemPrompt,
		Prompt: message,
	})
	if err != nil {
		return Uncertainty{}
	}
	fields, err := textgen.Normalize(raw)
	if err != nil {
		return Uncertainty{}
	}

	var u Uncertainty
	if v, ok := fields["is_uncertain"].(bool); ok {
		u.IsUncertain = v
	}
	u.Topic, _ = textgen.StringField(fields, "topic")
	if v, ok := fields["needs_examples"].(bool); ok {
		u.NeedsExample = v
	}
	return u
}

func (t *Tracker) retrieveExamples(ctx context.Context, topic string) []textgen.Document {
	if t.retriever == nil || topic == "" {
		return nil
	}
	docs, err := t.retriever.Retrieve(ctx, topic, exampleRetrieval)
	if err != nil {
		t.logger.Warn().Err(err).Str("topic", topic).Msg("example retrieval failed")
		return nil
	}
	return docs
}

func (t *Tracker) generateQuestion(ctx context.Context, prompt string) (string, error) {
	raw, err := t.gen.Generate(ctx, textgen.GenerationRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	fields, err := textgen.Normalize(raw)
	if err != nil {
		return "", err
	}
	if q, ok := textgen.StringField(fields, "question"); ok {
		return q, nil
	}
	if q, ok := textgen.StringField(fields, "content"); ok {
		return q, nil
	}
	return "", fmt.Errorf("generator returned no question field")
}

// asked counts a follow-up and returns the question unchanged.
func (t *Tracker) asked(question string) string {
	t.mu.Lock()
	t.followUps++
	t.mu.Unlock()
	return question
}

func (t *Tracker) askFallback() string {
	return t.asked(genericQuestion)
}

func lastUserMessage(messages []textgen.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == textgen.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

const uncertaintySystemPrompt = `사용자의 메시지에서 불확실성이나 추가 설명이 필요한 부분을 빠르게 분석하세요.
다음 형식의 JSON으로 응답하세요:
{"is_uncertain": boolean, "topic": string or null, "needs_examples": boolean}`

func buildExplanationPrompt(topic string, analysis *Analysis, examples []textgen.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "사용자가 %s에 대해 불확실해합니다.\n\n", topic)
	fmt.Fprintf(&sb, "대화 맥락: %s\n\n", analysis.ConversationContext)
	writeExamples(&sb, examples)
	sb.WriteString(`다음 형식의 JSON으로 응답하세요: {"question": "간단한 설명과 구체적인 예시, 그리고 하나의 명확한 후속 질문"}`)
	return sb.String()
}

func buildQuestionPrompt(focus string, analysis *Analysis, examples []textgen.Document) string {
	var sb strings.Builder
	sb.WriteString("다음 정보를 바탕으로 하나의 구체적인 질문을 생성해주세요:\n\n")
	fmt.Fprintf(&sb, "집중할 주제: %s\n", focus)
	fmt.Fprintf(&sb, "현재 맥락: %s\n\n", analysis.ConversationContext)
	writeExamples(&sb, examples)
	sb.WriteString("규칙:\n- 반드시 하나의 질문만 하세요\n- 예시를 먼저 언급한 후 자연스럽게 질문으로 이어가세요\n\n")
	sb.WriteString(`다음 형식의 JSON으로 응답하세요: {"question": "..."}`)
	return sb.String()
}

func writeExamples(sb *strings.Builder, examples []textgen.Document) {
	if len(examples) == 0 {
		return
	}
	sb.WriteString("관련 사례:\n")
	for _, d := range examples {
		fmt.Fprintf(sb, "- %s\n", d.Content)
	}
	sb.WriteString("\n")
}
