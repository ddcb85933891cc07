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
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnswers/services/orchestrator/datatypes"
)

func runAskOnce(t *testing.T, overrides datatypes.Overrides) (*fakeSearcher, *fakeCompletions, datatypes.ChatResponse) {
	t.Helper()
	searcher := &fakeSearcher{docs: []Document{
		{ID: "contrato1.pdf", Content: "O valor do contrato é R$ 154.800,00.", Score: 0.8},
	}}
	completions := &fakeCompletions{responses: []openai.ChatCompletionResponse{
		textResponse("O valor é R$ 154.800,00 [contrato1.pdf]"),
	}}
	approach := NewRetrieveThenRead(AskConfig{
		Completions: completions,
		Searcher:    searcher,
		Embedder:    fakeEmbedder{},
		Model:       "gpt-35-turbo",
	})

	resp, err := approach.Run(context.Background(), []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "Qual o valor do contrato?"},
	}, overrides, nil)
	require.NoError(t, err)
	return searcher, completions, resp
}

func TestRetrieveThenRead_UsesQuestionVerbatim(t *testing.T) {
	searcher, completions, _ := runAskOnce(t, datatypes.Overrides{})

	params := searcher.lastParams(t)
	require.NotNil(t, params.QueryText)
	assert.Equal(t, "Qual o valor do contrato?", *params.QueryText, "no distillation pass in ask mode")
	assert.Len(t, completions.requests, 1, "exactly one completion call")
}

func TestRetrieveThenRead_DefaultScoreFloors(t *testing.T) {
	searcher, _, _ := runAskOnce(t, datatypes.Overrides{})

	params := searcher.lastParams(t)
	assert.InDelta(t, askDefaultMinSearchScore, params.MinScore, 1e-9)
	assert.InDelta(t, askDefaultMinRerankerScore, params.MinRerankerScore, 1e-9)
}

func TestRetrieveThenRead_PromptLayout(t *testing.T) {
	_, completions, _ := runAskOnce(t, datatypes.Overrides{})

	req := completions.requests[0]
	require.Len(t, req.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Atra employees")
	assert.Contains(t, req.Messages[1].Content, "mean value of these contracts",
		"worked example question precedes the real one")
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[2].Role)
	assert.Contains(t, req.Messages[3].Content, "contrato1.pdf: O valor do contrato é R$ 154.800,00.")
}

func TestRetrieveThenRead_DefaultTemperature(t *testing.T) {
	_, completions, _ := runAskOnce(t, datatypes.Overrides{})

	assert.Equal(t, float32(0.3), completions.requests[0].Temperature)
}

func TestRetrieveThenRead_TemperatureOverride(t *testing.T) {
	temp := float32(0.9)
	_, completions, _ := runAskOnce(t, datatypes.Overrides{Temperature: &temp})

	assert.Equal(t, float32(0.9), completions.requests[0].Temperature)
}

func TestRetrieveThenRead_VectorsMode(t *testing.T) {
	searcher, _, _ := runAskOnce(t, datatypes.Overrides{RetrievalMode: RetrievalModeVectors})

	params := searcher.lastParams(t)
	assert.Nil(t, params.QueryText)
	require.Len(t, params.Vectors, 1)
	assert.Equal(t, "embedding", params.Vectors[0].Field)
}

func TestRetrieveThenRead_ResponseContext(t *testing.T) {
	_, _, resp := runAskOnce(t, datatypes.Overrides{})

	require.Len(t, resp.Choices, 1)
	choice := resp.Choices[0]
	assert.Equal(t, "O valor é R$ 154.800,00 [contrato1.pdf]", choice.Message.Content)
	require.Len(t, choice.Context.DataPoints.Text, 1)
	assert.Contains(t, choice.Context.DataPoints.Text[0], "contrato1.pdf")
	require.Len(t, choice.Context.Thoughts, 3)
	assert.Equal(t, "Search using user query", choice.Context.Thoughts[0].Title)
}

func TestRenderSources_SanitizesContent(t *testing.T) {
	lines := renderSources([]Document{
		{ID: "doc.pdf", Content: "linha um\nlinha [dois]"},
	}, false)

	require.Len(t, lines, 1)
	assert.Equal(t, "doc.pdf: linha um linha 【dois】", lines[0])
}

func TestRenderSources_SemanticCaptions(t *testing.T) {
	lines := renderSources([]Document{
		{ID: "doc.pdf", Content: "texto completo", Captions: []string{"trecho um", "trecho dois"}},
	}, true)

	require.Len(t, lines, 1)
	assert.Equal(t, "doc.pdf: trecho um . trecho dois", lines[0])
}

func TestRenderSources_CaptionlessFallsBackToContent(t *testing.T) {
	lines := renderSources([]Document{
		{ID: "contrato1.pdf", Content: "valor do contrato"},
	}, true)

	require.Len(t, lines, 1)
	assert.Equal(t, "contrato1.pdf: valor do contrato", lines[0], "a document without captions must keep its passage text")
}
