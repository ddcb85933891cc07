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
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianAnswers/pkg/extensions"
	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

// askSystemPrompt primes the single-shot question answering mode.
const askSystemPrompt = "You are an intelligent assistant helping Atra employees with questions about a set of public legal contracts." +
	"Use 'you' to refer to the individual asking the questions even if they ask with 'I'. " +
	"Answer the following question using only the data provided in the sources below. " +
	"For tabular information return it as an html table. Do not return markdown format. " +
	"Each source has a name followed by colon and the actual information, always include the source name for each fact you use in the response. " +
	"If you cannot answer using the sources below, say you don't know. Use below example to answer"

// askExampleQuestion and askExampleAnswer form a canned worked example
// appended to every ask prompt for style priming.
const askExampleQuestion = `
'What is the mean value of these contracts?'

Sources:
contrato1.pdf: This contract, effective from 30/11/2023 to 30/11/2024, is for services related to the receipt, storage, and final disposal of unusable tires in Sapezal-MT. The contract value is R$ 154,800.00.
contrato2.pdf: This contract, based on Federal Law No. 14133 of April 1, is for the acquisition of items at a total cost of R$ 469,899.99. The payments for this contract will come from specific budgetary allocations.
contrato3.pdf: This contract, which does not allow subcontracting, is for the provision of services at a total cost of R$ 663,500.00. The cost includes all direct and indirect expenses related to the execution of the contract.
contrato4.pdf: This contract, resulting from the Waiver of Bidding No. 27/2024, is for specialized services for the preparation of reports, technical opinions in psychiatric and graphotechnic expertises. The total contract value is R$ 1,200.00. Payment will be made within 30 days of issuing the invoice.
`

const askExampleAnswer = "The mean value of the contracts is R$ 322,349.99. This is calculated by adding the total values (R$ 154,800.00, R$ 469,899.99, R$ 663,500.00, R$ 1,200.00) and dividing by the number of contracts (4). Please note that this is a simplified calculation and may not take into account other factors that could affect the mean value of the contracts. It’s always a good idea to consult with a financial advisor or accountant for more accurate calculations."

// Default ranking floors for the ask mode.
const (
	askDefaultMinSearchScore   = 0.030
	askDefaultMinRerankerScore = 3.0
)

// RetrieveThenRead answers a single question with one retrieval pass and
// no query distillation: search with the question verbatim, inline the
// sources into the prompt, generate once. Streaming is not supported.
type RetrieveThenRead struct {
	completions CompletionService
	searcher    Searcher
	embedder    Embedder
	model       string
	deployment  string
	log         *slog.Logger
}

// AskConfig configures a RetrieveThenRead approach.
type AskConfig struct {
	Completions CompletionService
	Searcher    Searcher
	Embedder    Embedder
	Model       string
	Deployment  string
	Logger      *slog.Logger
}

// NewRetrieveThenRead builds the single-shot ask approach.
func NewRetrieveThenRead(cfg AskConfig) *RetrieveThenRead {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveThenRead{
		completions: cfg.Completions,
		searcher:    cfg.Searcher,
		embedder:    cfg.Embedder,
		model:       cfg.Model,
		deployment:  cfg.Deployment,
		log:         logger,
	}
}

// Run answers the final user question against the document index.
func (a *RetrieveThenRead) Run(ctx context.Context, messages []datatypes.Message, overrides datatypes.Overrides, sessionState json.RawMessage) (datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "RetrieveThenRead.Run")
	defer span.End()

	question := messages[len(messages)-1].Content
	auth := extensions.AuthInfoFromContext(ctx)
	filter := buildFilter(overrides, auth)
	hasText, hasVector := retrievalFlags(overrides.RetrievalMode)

	params := SearchParams{
		Top:                 overrides.Top,
		Filter:              filter,
		UseSemanticRanker:   overrides.SemanticRanker && hasText,
		UseSemanticCaptions: overrides.SemanticCaptions && hasText,
		MinScore:            overrides.MinimumSearchScore,
		MinRerankerScore:    overrides.MinimumRerankerScore,
	}
	if params.Top <= 0 {
		params.Top = 3
	}
	if params.MinScore == 0 {
		params.MinScore = askDefaultMinSearchScore
	}
	if params.MinRerankerScore == 0 {
		params.MinRerankerScore = askDefaultMinRerankerScore
	}
	if hasVector {
		values, err := a.embedder.EmbedText(ctx, question)
		if err != nil {
			return datatypes.ChatResponse{}, fmt.Errorf("embedding question: %w", err)
		}
		params.Vectors = []QueryVector{{Field: "embedding", Values: values}}
	}
	if hasText {
		params.QueryText = &question
	}

	results, err := a.searcher.Search(ctx, params)
	if err != nil {
		return datatypes.ChatResponse{}, fmt.Errorf("searching index: %w", err)
	}
	sourceLines := renderSources(results, params.UseSemanticCaptions)

	systemPrompt := askSystemPrompt
	if overrides.PromptTemplate != "" {
		systemPrompt = overrides.PromptTemplate
	}

	// Prompt layout: system, worked example pair, then the real question
	// with its sources inlined.
	builder := NewMessageBuilder(systemPrompt, a.model)
	builder.InsertMessage(1, datatypes.RoleUser, question+"\nSources:\n "+strings.Join(sourceLines, "\n"))
	builder.InsertMessage(1, datatypes.RoleAssistant, askExampleAnswer)
	builder.InsertMessage(1, datatypes.RoleUser, askExampleQuestion)
	prompt := builder.Messages()

	temperature := float32(0.3)
	if overrides.Temperature != nil {
		temperature = *overrides.Temperature
	}

	model := a.model
	if a.deployment != "" {
		model = a.deployment
	}
	resp, err := a.completions.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    prompt,
		Temperature: temperature,
		MaxTokens:   responseTokenLimit,
		N:           1,
	})
	if err != nil {
		return datatypes.ChatResponse{}, fmt.Errorf("answer completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return datatypes.ChatResponse{}, errors.New("answer completion returned no choices")
	}

	props := map[string]any{"model": a.model}
	if a.deployment != "" {
		props["deployment"] = a.deployment
	}
	respContext := datatypes.ResponseContext{
		DataPoints: datatypes.DataPoints{Text: sourceLines},
		Thoughts: []datatypes.ThoughtStep{
			{
				Title:       "Search using user query",
				Description: question,
				Props: map[string]any{
					"use_semantic_captions": params.UseSemanticCaptions,
					"use_semantic_ranker":   params.UseSemanticRanker,
					"top":                   params.Top,
					"filter":                filter,
					"has_vector":            hasVector,
				},
			},
			{
				Title:       "Search results",
				Description: describeResults(results),
			},
			{
				Title:       "Prompt to generate answer",
				Description: describeMessages(prompt),
				Props:       props,
			},
		},
	}

	return datatypes.ChatResponse{
		Choices: []datatypes.ResponseChoice{
			{
				Index:        0,
				Message:      datatypes.ResponseMessage{Role: datatypes.RoleAssistant, Content: resp.Choices[0].Message.Content},
				Context:      respContext,
				SessionState: sessionState,
			},
		},
	}, nil
}
