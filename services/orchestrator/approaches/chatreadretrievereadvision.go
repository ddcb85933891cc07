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

// visionSystemPromptTemplate grounds the answer model in the retrieved
// text and image sources.
const visionSystemPromptTemplate = `O Assistente fornece informações sobre ações trabalhistas e ações relacionadas à locação de imóveis.
Os documentos contêm texto, gráficos, tabelas e imagens.
Sempre inclua o nome da fonte da imagem ou do texto para cada fato usado na resposta no formato: [nome_do_arquivo].
Responda à seguinte pergunta usando apenas os dados fornecidos nas fontes abaixo.
Se fazer uma pergunta de esclarecimento para o usuário ajudar, faça a pergunta.
Seja breve em suas respostas.
Para informações tabulares, retorne-as como uma tabela html. Não retorne no formato markdown.
A fonte de texto e imagem pode ser o mesmo nome de arquivo, não use o título da imagem ao citar a fonte da imagem, use apenas o nome do arquivo conforme mencionado.
Se não puder responder usando as fontes abaixo, diga que não sabe. Retorne apenas a resposta sem nenhum texto de entrada.
{follow_up_questions_prompt}
{injected_prompt}
`

// Vision input selectors.
const (
	VisionInputTexts         = "texts"
	VisionInputImages        = "images"
	VisionInputTextAndImages = "textAndImages"
)

// ChatReadRetrieveReadVision answers a conversation in three steps:
// distill the history into a search query, retrieve matching passages
// (text and images), then generate a grounded answer from the sources
// and history via a multimodal prompt.
type ChatReadRetrieveReadVision struct {
	chatApproach
	searcher Searcher
	embedder Embedder
	images   ImageFetcher
}

// NewChatReadRetrieveReadVision builds the vision-augmented
// conversational approach. The model must have a known context window.
func NewChatReadRetrieveReadVision(cfg ChatConfig) (*ChatReadRetrieveReadVision, error) {
	tokenLimit, err := GetTokenLimit(cfg.Model)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatReadRetrieveReadVision{
		chatApproach: chatApproach{
			completions: cfg.Completions,
			model:       cfg.Model,
			deployment:  cfg.Deployment,
			tokenLimit:  tokenLimit,
			log:         logger,
		},
		searcher: cfg.Searcher,
		embedder: cfg.Embedder,
		images:   cfg.Images,
	}, nil
}

// buildFilter shapes the caller's overrides and identity into the document
// visibility filter forwarded to search. Returns nil when nothing is
// filtered.
func buildFilter(overrides datatypes.Overrides, auth *extensions.AuthInfo) *SecurityFilter {
	filter := SecurityFilter{ExcludeCategory: overrides.ExcludeCategory}
	if auth != nil {
		if overrides.UseOIDSecurityFilter && auth.UserID != "" {
			filter.OIDs = []string{auth.UserID}
		}
		if overrides.UseGroupsSecurityFilter {
			if v, ok := auth.Metadata.Get("groups"); ok {
				if groups, ok := v.([]string); ok {
					filter.Groups = groups
				}
			}
		}
	}
	if filter.ExcludeCategory == "" && len(filter.OIDs) == 0 && len(filter.Groups) == 0 {
		return nil
	}
	return &filter
}

// visionInputFlags reports which modalities reach the answer model.
// The default (empty) selector includes both.
func visionInputFlags(input string) (includeText, includeImages bool) {
	switch input {
	case VisionInputTexts:
		return true, false
	case VisionInputImages:
		return false, true
	default:
		return true, true
	}
}

// buildFinalCall runs distillation and retrieval, then assembles the
// answer completion request and the grounding context.
func (a *ChatReadRetrieveReadVision) buildFinalCall(ctx context.Context, history []datatypes.Message, overrides datatypes.Overrides, shouldStream bool) (finalCall, error) {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveReadVision.buildFinalCall")
	defer span.End()

	originalUserQuery := history[len(history)-1].Content
	auth := extensions.AuthInfoFromContext(ctx)
	filter := buildFilter(overrides, auth)
	includeText, includeImages := visionInputFlags(overrides.VisionInput)
	if a.images == nil {
		// No image store configured: the prompt stays text-only even
		// when the caller asked for image input.
		includeImages = false
	}

	g, err := a.distillAndRetrieve(ctx, a.searcher, a.embedder, history, overrides, filter)
	if err != nil {
		return finalCall{}, err
	}

	// Assemble the grounded answer prompt.
	systemPrompt := renderSystemPrompt(
		visionSystemPromptTemplate,
		overrides.PromptTemplate,
		followupPromptIfRequested(overrides.SuggestFollowupQuestions),
	)

	userContent := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: originalUserQuery},
	}
	if includeText {
		userContent = append(userContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "\n\nSources:\n" + strings.Join(g.sourceLines, "\n"),
		})
	}
	var imageRefs []string
	if includeImages {
		for _, result := range g.results {
			// Missing images are skipped, not errors.
			if url, ok := a.images.FetchImage(ctx, result); ok {
				imageRefs = append(imageRefs, url)
				userContent = append(userContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
				})
			}
		}
	}

	messages, err := BuildMessages(
		systemPrompt,
		a.model,
		history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: userContent},
		a.tokenLimit-responseTokenLimit,
		nil,
	)
	if err != nil {
		return finalCall{}, fmt.Errorf("assembling answer prompt: %w", err)
	}

	temperature := float32(0.0)
	if overrides.Temperature != nil {
		temperature = *overrides.Temperature
	}

	return finalCall{
		context: datatypes.ResponseContext{
			DataPoints: datatypes.DataPoints{Text: g.sourceLines, Images: imageRefs},
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
func (a *ChatReadRetrieveReadVision) Run(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) (datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveReadVision.Run")
	defer span.End()

	call, err := a.buildFinalCall(ctx, messages, overrides, false)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}
	return a.runWithoutStreaming(ctx, call, overrides.SuggestFollowupQuestions, sessionState)
}

// RunStream answers the conversation as a stream of events.
func (a *ChatReadRetrieveReadVision) RunStream(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) <-chan StreamEvent {
	ctx, span := tracer.Start(ctx, "ChatReadRetrieveReadVision.RunStream")

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

// followupPromptIfRequested returns the follow-up instructions block only
// when the caller asked for follow-up questions.
func followupPromptIfRequested(requested bool) string {
	if requested {
		return followUpQuestionsPrompt
	}
	return ""
}

// describeMessages flattens a prompt into printable lines for the
// diagnostics trail.
func describeMessages(messages []openai.ChatCompletionMessage) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if len(m.MultiContent) > 0 {
			var parts []string
			for _, p := range m.MultiContent {
				if p.Type == openai.ChatMessagePartTypeText {
					parts = append(parts, p.Text)
				} else if p.ImageURL != nil {
					parts = append(parts, "[image]")
				}
			}
			content = strings.Join(parts, " ")
		}
		lines = append(lines, m.Role+": "+content)
	}
	return lines
}

// describeResults serializes ranked documents for the diagnostics trail.
func describeResults(docs []Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		entry := map[string]any{
			"id":      doc.ID,
			"content": doc.Content,
			"score":   doc.Score,
		}
		if doc.RerankerScore != 0 {
			entry["reranker_score"] = doc.RerankerScore
		}
		if len(doc.Captions) > 0 {
			entry["captions"] = doc.Captions
		}
		out = append(out, entry)
	}
	return out
}
