// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package approaches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.ai/orchestrator/approaches")

// ErrMalformedFunctionArguments is returned when the distillation tool call
// carries an argument payload that cannot be parsed.
var ErrMalformedFunctionArguments = errors.New("malformed function call arguments")

const (
	// noResponseSentinel is what the model returns when it cannot produce
	// a search query.
	noResponseSentinel = "0"

	// injectedPromptPrefix marks a prompt override that is appended to the
	// default system prompt instead of replacing it.
	injectedPromptPrefix = ">>>"

	searchSourcesToolName = "search_sources"

	// responseTokenLimit is reserved out of the model's context window for
	// the generated answer.
	responseTokenLimit = 1024

	followupOpenMarker = "<<"
)

// =============================================================================
// Prompts
// =============================================================================

const queryPromptTemplate = `Abaixo está um histórico da conversa até agora e uma nova pergunta feita pelo usuário que precisa ser respondida buscando em uma base de conhecimento.
Você tem acesso a um índice de pesquisa com centenas de documentos.
Gere uma consulta de pesquisa com base na conversa e na nova pergunta.
Não inclua nomes de arquivos citados e nomes de documentos, por exemplo info.txt ou doc.pdf, nos termos da consulta de pesquisa.
Não inclua nenhum texto dentro de [] ou <<>> nos termos da consulta de pesquisa.
Não inclua caracteres especiais como '+'.
Se não puder gerar uma consulta de pesquisa, retorne apenas o número 0.
`

const followUpQuestionsPrompt = `Gere 3 perguntas de acompanhamento breves que o usuário provavelmente faria a seguir.
Coloque as perguntas de acompanhamento entre colchetes duplos. Exemplo:
<<Qual é o prazo para notificar o locador sobre uma reparação?>>
<<Como faço para calcular a rescisão do contrato de trabalho?>>
<<Quais são os documentos necessários para iniciar uma ação trabalhista?>>
Não repita perguntas que já foram feitas.
Certifique-se de que a última pergunta termine com ">>".
`

// queryPromptFewShots primes the distillation model with question to
// search-query rewrites from the deployment's domain.
var queryPromptFewShots = []openai.ChatCompletionMessage{
	{Role: openai.ChatMessageRoleUser, Content: "Qual foi o motivo da apelação no caso de locação de aluguel?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Identifique o motivo da apelação no caso de locação de aluguel"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais foram os argumentos apresentados pelo apelante no caso trabalhista?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Liste os argumentos apresentados pelo apelante no caso trabalhista"},
	{Role: openai.ChatMessageRoleUser, Content: "Qual foi a decisão do juiz em primeira instância no caso de locação de aluguel?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Descreva a decisão do juiz em primeira instância no caso de locação de aluguel"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais foram as provas apresentadas no caso trabalhista?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Identifique as provas apresentadas no caso trabalhista"},
	{Role: openai.ChatMessageRoleUser, Content: "Qual foi o resultado da apelação no caso de locação de aluguel?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Informe o resultado da apelação no caso de locação de aluguel"},
	{Role: openai.ChatMessageRoleUser, Content: "Qual é o procedimento para entrar com uma ação de despejo por falta de pagamento?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Explique o procedimento para entrar com uma ação de despejo por falta de pagamento"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais são os requisitos para caracterizar uma rescisão indireta do contrato de trabalho?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Descreva os requisitos para caracterizar uma rescisão indireta do contrato de trabalho"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais são os prazos para interpor recurso após uma sentença judicial?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Informe os prazos para interpor recurso após uma sentença judicial"},
	{Role: openai.ChatMessageRoleUser, Content: "Como é calculada a indenização por danos morais em um processo trabalhista?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Explique como é calculada a indenização por danos morais em um processo trabalhista"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais são os documentos necessários para instruir uma ação de cobrança de aluguel em atraso?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Liste os documentos necessários para instruir uma ação de cobrança de aluguel em atraso"},
	{Role: openai.ChatMessageRoleUser, Content: "Qual é a diferença entre um contrato de locação residencial e um contrato de locação comercial?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Explique a diferença entre um contrato de locação residencial e um contrato de locação comercial"},
	{Role: openai.ChatMessageRoleUser, Content: "Quais são as formas de garantia de um contrato de locação?"},
	{Role: openai.ChatMessageRoleAssistant, Content: "Identifique as formas de garantia de um contrato de locação"},
}

// searchSourcesTool lets the distillation model hand back the rewritten
// query as structured arguments instead of free text.
var searchSourcesTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        searchSourcesToolName,
		Description: "Retrieve sources from the document index",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"search_query": {
					"type": "string",
					"description": "Query string to retrieve documents from the index"
				}
			},
			"required": ["search_query"]
		}`),
	},
}

// =============================================================================
// Prompt Rendering
// =============================================================================

// formatPrompt fills the two named slots a system prompt template carries.
func formatPrompt(template, injectedPrompt, followupPrompt string) string {
	r := strings.NewReplacer(
		"{injected_prompt}", injectedPrompt,
		"{follow_up_questions_prompt}", followupPrompt,
	)
	return r.Replace(template)
}

// renderSystemPrompt resolves the caller's prompt override against the
// default template. An empty override keeps the default; an override
// starting with ">>>" injects its remainder into the default; anything
// else replaces the template wholesale.
func renderSystemPrompt(defaultTemplate, overridePrompt, followupPrompt string) string {
	switch {
	case overridePrompt == "":
		return formatPrompt(defaultTemplate, "", followupPrompt)
	case strings.HasPrefix(overridePrompt, injectedPromptPrefix):
		injected := strings.TrimPrefix(overridePrompt, injectedPromptPrefix) + "\n"
		return formatPrompt(defaultTemplate, injected, followupPrompt)
	default:
		return formatPrompt(overridePrompt, "", followupPrompt)
	}
}

// =============================================================================
// Follow-up Question Extraction
// =============================================================================

var followupPattern = regexp.MustCompile(`<<([^>]+)>>`)

// extractFollowupQuestions splits an answer into its visible text (everything
// before the first "<<") and the ordered list of <<...>> delimited questions.
func extractFollowupQuestions(content string) (string, []string) {
	visible, _, _ := strings.Cut(content, followupOpenMarker)

	var questions []string
	for _, match := range followupPattern.FindAllStringSubmatch(content, -1) {
		questions = append(questions, match[1])
	}
	return visible, questions
}

// =============================================================================
// Search Query Distillation
// =============================================================================

// extractSearchQuery pulls the rewritten search query out of the
// distillation response. A matching tool call wins over free text; the
// sentinel "0" in either path falls back to the raw user query.
func extractSearchQuery(resp openai.ChatCompletionResponse, userQuery string) (string, error) {
	if len(resp.Choices) == 0 {
		return userQuery, nil
	}
	message := resp.Choices[0].Message

	if len(message.ToolCalls) > 0 {
		for _, call := range message.ToolCalls {
			if call.Type != openai.ToolTypeFunction || call.Function.Name != searchSourcesToolName {
				continue
			}
			// A pointer distinguishes an absent search_query (fall back)
			// from one the model deliberately left empty (honored as-is).
			var args struct {
				SearchQuery *string `json:"search_query"`
			}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return "", fmt.Errorf("%w: %v", ErrMalformedFunctionArguments, err)
			}
			if args.SearchQuery != nil && *args.SearchQuery != noResponseSentinel {
				return *args.SearchQuery, nil
			}
		}
	} else if message.Content != "" {
		if strings.TrimSpace(message.Content) != noResponseSentinel {
			return message.Content, nil
		}
	}
	return userQuery, nil
}

// distillationCeiling computes the token budget for the distillation
// prompt. The character length of the space-joined request string stands
// in for its token cost here; swapping in a real token count would shift
// which history turns survive truncation.
func distillationCeiling(tokenLimit int, userQueryRequest string) int {
	n := utf8.RuneCountInString(userQueryRequest)
	if n == 0 {
		return tokenLimit
	}
	return tokenLimit - (2*n - 1)
}

// =============================================================================
// Shared Run Logic
// =============================================================================

// finalCall is everything run_until_final_call style preparation produces:
// the grounding context for the caller and the fully-built completion
// request for the answer model.
type finalCall struct {
	context datatypes.ResponseContext
	request openai.ChatCompletionRequest
}

// chatApproach carries the collaborators and behavior shared by the
// conversational answer strategies.
type chatApproach struct {
	completions CompletionService
	model       string
	deployment  string
	tokenLimit  int
	log         *slog.Logger
}

// completionModel returns the deployment alias when one is configured,
// otherwise the bare model name.
func (a *chatApproach) completionModel() string {
	if a.deployment != "" {
		return a.deployment
	}
	return a.model
}

// modelProps names the answering model for the diagnostics trail.
func (a *chatApproach) modelProps() map[string]any {
	props := map[string]any{"model": a.model}
	if a.deployment != "" {
		props["deployment"] = a.deployment
	}
	return props
}

// distillQuery runs the first completion pass: condense the conversation
// into a standalone search query.
//
// # Outputs
//
//   - queryText: The rewritten query, or the raw user query on fallback.
//   - queryMessages: The prompt that was sent, for the diagnostics trail.
func (a *chatApproach) distillQuery(ctx context.Context, history []datatypes.Message, originalUserQuery string) (string, []openai.ChatCompletionMessage, error) {
	ctx, span := tracer.Start(ctx, "chatApproach.distillQuery")
	defer span.End()

	userQueryRequest := "Generate search query for: " + originalUserQuery

	queryMessages, err := BuildMessages(
		queryPromptTemplate,
		a.model,
		history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userQueryRequest},
		distillationCeiling(a.tokenLimit, userQueryRequest),
		queryPromptFewShots,
	)
	if err != nil {
		return "", nil, fmt.Errorf("assembling distillation prompt: %w", err)
	}

	resp, err := a.completions.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.completionModel(),
		Messages:    queryMessages,
		Temperature: 0.0,
		MaxTokens:   100,
		N:           1,
		Tools:       []openai.Tool{searchSourcesTool},
	})
	if err != nil {
		return "", nil, fmt.Errorf("distillation completion: %w", err)
	}

	queryText, err := extractSearchQuery(resp, originalUserQuery)
	if err != nil {
		return "", nil, err
	}
	a.log.DebugContext(ctx, "distilled search query", "query", queryText)
	return queryText, queryMessages, nil
}

// runWithoutStreaming executes the prepared completion request and shapes
// the one-shot response, extracting follow-up questions when requested.
func (a *chatApproach) runWithoutStreaming(ctx context.Context, call finalCall, suggestFollowups bool, sessionState json.RawMessage) (datatypes.ChatResponse, error) {
	resp, err := a.completions.CreateChatCompletion(ctx, call.request)
	if err != nil {
		return datatypes.ChatResponse{}, fmt.Errorf("answer completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return datatypes.ChatResponse{}, errors.New("answer completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	respContext := call.context
	if suggestFollowups {
		visible, questions := extractFollowupQuestions(content)
		content = visible
		respContext.FollowupQuestions = questions
	}

	return datatypes.ChatResponse{
		Choices: []datatypes.ResponseChoice{
			{
				Index:        0,
				Message:      datatypes.ResponseMessage{Role: datatypes.RoleAssistant, Content: content},
				Context:      respContext,
				SessionState: sessionState,
			},
		},
	}, nil
}

// emit delivers one event, or reports false when the caller is gone.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// runStream executes the prepared completion request in streaming mode.
//
// # Description
//
// The returned channel is unbuffered, so the goroutine only pulls the next
// upstream delta after the caller has consumed the current event. Event
// order is fixed: one context event first, then content events, then at
// most one follow-up event. When follow-ups were requested, the first
// "<<" flips the machine into an accumulating state: the marker and
// everything after it is buffered instead of emitted, and the buffer is
// mined for <<...>> questions at end of stream.
func (a *chatApproach) runStream(ctx context.Context, call finalCall, suggestFollowups bool, sessionState json.RawMessage) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		stream, err := a.completions.CreateChatCompletionStream(ctx, call.request)
		if err != nil {
			emit(ctx, events, StreamEvent{Err: fmt.Errorf("opening answer stream: %w", err)})
			return
		}
		defer func() {
			if cerr := stream.Close(); cerr != nil {
				a.log.WarnContext(ctx, "closing completion stream", "error", cerr)
			}
		}()

		if !emit(ctx, events, StreamEvent{Delta: datatypes.NewContextDelta(call.context, sessionState)}) {
			return
		}

		accumulating := false
		var followupBuf strings.Builder

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				emit(ctx, events, StreamEvent{Err: fmt.Errorf("receiving answer delta: %w", err)})
				return
			}
			// Upstream occasionally sends keep-alive chunks with no choices.
			if len(chunk.Choices) == 0 {
				continue
			}

			content := chunk.Choices[0].Delta.Content
			switch {
			case suggestFollowups && !accumulating && strings.Contains(content, followupOpenMarker):
				idx := strings.Index(content, followupOpenMarker)
				if prefix := content[:idx]; prefix != "" {
					if !emit(ctx, events, StreamEvent{Delta: datatypes.NewContentDelta(prefix)}) {
						return
					}
				}
				accumulating = true
				followupBuf.WriteString(content[idx:])
			case accumulating:
				followupBuf.WriteString(content)
			default:
				if !emit(ctx, events, StreamEvent{Delta: datatypes.NewContentDelta(content)}) {
					return
				}
			}
		}

		if followupBuf.Len() > 0 {
			_, questions := extractFollowupQuestions(followupBuf.String())
			emit(ctx, events, StreamEvent{Delta: datatypes.NewFollowupDelta(questions)})
		}
	}()

	return events
}
