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
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// chatSystemPromptTemplate grounds the text-only answer model in
// retrieved passages.
const chatSystemPromptTemplate = `O Assistente fornece informações sobre ações trabalhistas e ações relacionadas à locação de imóveis.
Responda APENAS com os fatos listados na lista de fontes abaixo.
Se não houver informações suficientes abaixo, diga que não sabe. Não gere respostas que não usem as fontes abaixo.
Se fazer uma pergunta de esclarecimento para o usuário ajudar, faça a pergunta.
Para informações tabulares, retorne-as como uma tabela html. Não retorne no formato markdown.
Cada fonte tem um nome seguido de dois pontos e a informação real; sempre inclua o nome da fonte para cada fato usado na resposta.
Use colchetes para referenciar a fonte, por exemplo [contrato1.pdf]. Não combine fontes, liste cada fonte separadamente, por exemplo [contrato1.pdf][contrato2.pdf].
{follow_up_questions_prompt}
{injected_prompt}
`

// chatAnswerFewShots is the canned worked example appended to every
// text-only answer prompt for style priming: a question with its sources
// inlined and the model answer citing them.
var chatAnswerFewShots = []openai.ChatCompletionMessage{
	{Role: openai.ChatMessageRoleUser, Content: askExampleQuestion},
	{Role: openai.ChatMessageRoleAssistant, Content: askExampleAnswer},
}

// ChatConfig configures a conversational approach.
type ChatConfig struct {
	Completions CompletionService
	Searcher    Searcher
	Embedder    Embedder

	// Images resolves page images for retrieved passages. Only the
	// vision variant consumes it; nil disables image input.
	Images ImageFetcher

	Model      string
	Deployment string
	Logger     *slog.Logger
}

// ChatReadRetrieveRead answers a conversation in three steps: distill the
// history into a search query, retrieve matching passages, then generate
// a grounded answer from a text-only prompt with the sources inlined.
type ChatReadRetrieveRead struct {
	chatApproach
	searcher Searcher
	embedder Embedder
}

// NewChatReadRetrieveRead builds the text-only conversational approach.
// The model must have a known context window.
func NewChatReadRetrieveRead(cfg ChatConfig) (*ChatReadRetrieveRead, error) {
	tokenLimit, err := GetTokenLimit(cfg.Model)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatReadRetrieveRead{
		chatApproach: chatApproach{
			completions: cfg.Completions,
			model:       cfg.Model,
			deployment:  cfg.Deployment,
			tokenLimit:  tokenLimit,
			log:         logger,
		},
		searcher: cfg.Searcher,
		embedder: cfg.Embedder,
	}, nil
}

// buildFinalCall runs distillation and retrieval, then assembles the
// answer completion request and the grounding context.
func (a *ChatReadRetrieveRead) buildFinalCall(ctx context.Context, history []datatypes.Message, overrides datatypes.Overrides, shouldStream bool) (finalCall, error) {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveRead.buildFinalCall")
	defer span.End()

	originalUserQuery := history[len(history)-1].Content
	auth := extensions.AuthInfoFromContext(ctx)
	filter := buildFilter(overrides, auth)

	g, err := a.distillAndRetrieve(ctx, a.searcher, a.embedder, history, overrides, filter)
	if err != nil {
		return finalCall{}, err
	}

	systemPrompt := renderSystemPrompt(
		chatSystemPromptTemplate,
		overrides.PromptTemplate,
		followupPromptIfRequested(overrides.SuggestFollowupQuestions),
	)

	// The sources travel inline in a single text block; the canned
	// worked example precedes the history for style priming.
	userContent := originalUserQuery + "\n\nSources:\n" + strings.Join(g.sourceLines, "\n")
	messages, err := BuildMessages(
		systemPrompt,
		a.model,
		history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userContent},
		a.tokenLimit-responseTokenLimit,
		chatAnswerFewShots,
	)
	if err != nil {
		return finalCall{}, fmt.Errorf("assembling answer prompt: %w", err)
	}

	temperature := float32(0.3)
	if overrides.Temperature != nil {
		temperature = *overrides.Temperature
	}

	return finalCall{
		context: datatypes.ResponseContext{
			DataPoints: datatypes.DataPoints{Text: g.sourceLines},
			Thoughts:   a.groundingThoughts(g, filter, overrides, messages),
		},
		request: openai.ChatCompletionRequest{
			Model:       a.completionModel(),
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   responseTokenLimit,
			N:           1,
			Stream:      shouldStream,
		},
	}, nil
}

// Run answers the conversation in one shot.
func (a *ChatReadRetrieveRead) Run(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) (datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveRead.Run")
	defer span.End()

	call, err := a.buildFinalCall(ctx, messages, overrides, false)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}
	return a.runWithoutStreaming(ctx, call, overrides.SuggestFollowupQuestions, sessionState)
}

// RunStream answers the conversation as a stream of events.
func (a *ChatReadRetrieveRead) RunStream(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) <-chan StreamEvent {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveRead.RunStream")

	call, err := a.buildFinalCall(ctx, messages, overrides, true)
	if err != nil {
		span.End()
		events := make(chan StreamEvent, 1)
		events <- StreamEvent{Err: err}
		close(events)
		return events
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer span.End()
		for ev := range a.runStream(ctx, call, overrides.SuggestFollowupQuestions, sessionState) {
			if !emit(ctx, out, ev) {
				return
			}
		}
	}()
	return out
}

// =============================================================================
// Shared Grounding Steps
// =============================================================================

// grounding is what the distillation and retrieval steps hand to the
// variant-specific prompt assembly.
type grounding struct {
	queryText     string
	queryMessages []openai.ChatCompletionMessage
	params        SearchParams
	results       []Document
	sourceLines   []string
}

// distillAndRetrieve condenses the conversation into a search query and
// retrieves the matching passages. Both conversational variants share
// these two steps.
func (a *chatApproach) distillAndRetrieve(ctx context.Context, searcher Searcher, embedder Embedder, history []datatypes.Message, overrides datatypes.Overrides, filter *SecurityFilter) (grounding, error) {
	originalUserQuery := history[len(history)-1].Content

	queryText, queryMessages, err := a.distillQuery(ctx, history, originalUserQuery)
	if err != nil {
		return grounding{}, err
	}

	params, err := buildSearchParams(ctx, embedder, queryText, overrides, filter)
	if err != nil {
		return grounding{}, fmt.Errorf("building search parameters: %w", err)
	}
	hasText, _ := retrievalFlags(overrides.RetrievalMode)
	params.UseSemanticRanker = params.UseSemanticRanker && hasText
	params.UseSemanticCaptions = params.UseSemanticCaptions && hasText

	results, err := searcher.Search(ctx, params)
	if err != nil {
		return grounding{}, fmt.Errorf("searching index: %w", err)
	}

	return grounding{
		queryText:     queryText,
		queryMessages: queryMessages,
		params:        params,
		results:       results,
		sourceLines:   renderSources(results, params.UseSemanticCaptions),
	}, nil
}

// groundingThoughts records the pipeline stages for the diagnostics trail.
func (a *chatApproach) groundingThoughts(g grounding, filter *SecurityFilter, overrides datatypes.Overrides, answerPrompt []openai.ChatCompletionMessage) []datatypes.ThoughtStep {
	return []datatypes.ThoughtStep{
		{
			Title:       "Prompt to generate search query",
			Description: describeMessages(g.queryMessages),
			Props:       a.modelProps(),
		},
		{
			Title:       "Search using generated search query",
			Description: g.queryText,
			Props: map[string]any{
				"use_semantic_captions":  g.params.UseSemanticCaptions,
				"use_semantic_ranker":    g.params.UseSemanticRanker,
				"top":                    g.params.Top,
				"filter":                 filter,
				"vector_fields":          overrides.VectorFields,
				"minimum_search_score":   g.params.MinScore,
				"minimum_reranker_score": g.params.MinRerankerScore,
			},
		},
		{
			Title:       "Search results",
			Description: describeResults(g.results),
		},
		{
			Title:       "Prompt to generate answer",
			Description: describeMessages(answerPrompt),
			Props:       a.modelProps(),
		},
	}
}
