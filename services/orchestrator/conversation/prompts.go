// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

// =============================================================================
// Classifier Prompts
// =============================================================================

// mentalStateSystemPrompt steers the model to return exactly one of the six
// supported mental-state labels.
const mentalStateSystemPrompt = `You are an AI trained to predict the mental state of a user based on their input.
The possible mental states are:
- Engaged (the user is interested and following along)
- Curious (the user wants more info or deeper explanations)
- Confused (the user is uncertain or not understanding)
- Bored (the user's attention is waning)
- Frustrated (the user is annoyed or stuck)
- Satisfied (the user feels their needs have been met)

Analyze the user's input and predict the most likely mental state.
Return only the predicted mental state as a single word.`

// contentBiasSystemPrompt asks for a terse bullet list of technical bias
// names found in retrieved content.
const contentBiasSystemPrompt = `You are an expert bias-detection AI. Analyze the given text and:
1. Strictly list detected biases using ONLY short technical names (e.g., "Political bias", "Cultural bias")
2. Use bullet points with "- " formatting
3. Return "No biases detected" if none exist
4. Never add explanations or descriptions

Example output:
- Confirmation bias
- Gender bias`

// dialogueBiasSystemPrompt is the same rubric applied to the user's own
// utterance rather than retrieved content.
const dialogueBiasSystemPrompt = `You are an expert bias-detection AI. Analyze the given user dialogue and:
1. Strictly list detected biases using ONLY short technical names (e.g., "Political bias", "Cultural bias")
2. Use bullet points with "- " formatting
3. Return "No biases detected" if none exist
4. Never add explanations or descriptions

Example output:
- Confirmation bias
- Gender bias`

// =============================================================================
// Maxim Rubric Prompts
// =============================================================================

// maximAnalysisSystemPrompt frames the content rubric evaluation.
const maximAnalysisSystemPrompt = "You are a linguistics expert analyzing text for adherence to Grice's Cooperative Principle maxims: " +
	"Quantity (informative, not over/under), Quality (truthful, evidence-backed), " +
	"Relevance (stays on-topic), and Manner (clear, orderly, unambiguous)."

// responseEvaluationSystemPrompt frames the rubric applied to the model's
// own reply inside its conversation context.
const responseEvaluationSystemPrompt = `You are a dialogue quality analyzer. Evaluate the AI's final response in the provided conversation history against Grice's maxims, considering:
1. How well it maintains Quantity given the conversation flow
2. Truthfulness and evidence (Quality) based on available context
3. Relevance to both immediate and broader dialogue context
4. Clarity and structure (Manner) in the response`

// buildMaximAnalysisPrompt assembles the user message for the content
// rubric: the text under evaluation, the domain hint, and any custom
// per-maxim guidelines.
func buildMaximAnalysisPrompt(text, domainContext string, guidelines map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this text for Grice's maxims:\n\n%s\n\n", text)
	fmt.Fprintf(&b, "Domain Context: %s\n", domainContext)

	if len(guidelines) > 0 {
		b.WriteString("Custom Guidelines:\n")
		maxims := make([]string, 0, len(guidelines))
		for maxim := range guidelines {
			maxims = append(maxims, maxim)
		}
		sort.Strings(maxims)
		for _, maxim := range maxims {
			fmt.Fprintf(&b, "- %s: %s\n", maxim, guidelines[maxim])
		}
	}

	b.WriteString("\nProvide a JSON response with a numerical score (1-5) and concise explanation for each maxim. ")
	b.WriteString(`Example format: {"quantity": {"score": 3, "explanation": "..."}, ...}`)
	return b.String()
}

// buildResponseEvaluationPrompt assembles the user message for the reply
// rubric: the conversation context, the reply under evaluation, and the
// domain hint.
func buildResponseEvaluationPrompt(conversationContext, latestResponse, domainContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation Context:\n%s\n\n", conversationContext)
	fmt.Fprintf(&b, "Latest AI Response:\n%s\n\n", latestResponse)
	fmt.Fprintf(&b, "Domain: %s\n\n", domainContext)
	b.WriteString("Provide JSON evaluation with 1-5 scores and explanations for each maxim.")
	return b.String()
}

// =============================================================================
// Generation Prompts
// =============================================================================

// generationPreamble opens every bias-mode generation prompt with the
// cooperative-principle guidelines.
const generationPreamble = `You are a conversational partner whose wisdom, intelligence, and empathy make your responses indistinguishable from a human's. Your primary goal is to provide precise, fact-based, and unbiased insights while engaging with users in a natural and human-like manner. In every interaction, consider the following guidelines:

- **Grice's Maxims:**
- **Quantity:** Offer just the right amount of information, neither too little nor too much.
- **Quality:** Ensure every response is truthful and supported by accurate information.
- **Relevance:** Stay on topic and address the user's query directly.
- **Manner:** Communicate clearly and succinctly to avoid any confusion.
`

// generationClose ends every bias-mode generation prompt.
const generationClose = `
Your responses should seamlessly integrate all of the above, ensuring that each interaction is both precise and warmly human.`

// promptInputs carries everything the generation prompt builder needs for
// one turn.
type promptInputs struct {
	retrievedContent string
	combinedHistory  string
	contentBias      string
	dialogueBias     string

	// includeContentBias distinguishes the retrieval flow (content plus
	// dialogue bias lines) from the file and museum flows (dialogue bias
	// only).
	includeContentBias bool

	adaptation string
}

// buildGenerationPrompt assembles the per-turn system prompt: guidelines,
// contextual awareness (retrieved content, combined history, bias lines),
// then the user-centric adaptation block.
func buildGenerationPrompt(in promptInputs) string {
	var b strings.Builder
	b.WriteString(generationPreamble)
	b.WriteString("\n- **Contextual Awareness:**\n")
	fmt.Fprintf(&b, "- **Retrieved Content:** %s\n", in.retrievedContent)
	fmt.Fprintf(&b, "- **Combined History:** %s\n", in.combinedHistory)
	b.WriteString("- **Bias Considerations:**\n")
	if in.includeContentBias {
		fmt.Fprintf(&b, "    - Content Bias: %s\n", in.contentBias)
	}
	fmt.Fprintf(&b, "    - Dialogue Bias: %s\n", in.dialogueBias)
	b.WriteString("\n- **User-Centric Adaptation:**\n")
	b.WriteString(in.adaptation)
	b.WriteString("\n")
	b.WriteString(generationClose)
	return b.String()
}

// buildMaximGenerationPrompt assembles the system prompt for the
// maxim-evaluation flow. The contextual block carries the caller-supplied
// file context and the persisted content rubric rather than retrieval and
// bias lines.
func buildMaximGenerationPrompt(fileContext, fileAnalysis, domainContext string) string {
	if fileContext == "" {
		fileContext = "No file context"
	}
	if fileAnalysis == "" || fileAnalysis == userstate.NeutralAnnotation {
		fileAnalysis = "No file analysis"
	}
	return fmt.Sprintf(`You are a conversational AI. Follow these guidelines:
- Grice's Maxims: Be informative but concise (Quantity), truthful (Quality), relevant to conversation history, and clear (Manner)
- Context: %s
- Grice's maxim evaluation: %s
- Domain: %s`, fileContext, fileAnalysis, domainContext)
}

// buildUserAdaptation renders the adaptation block from the profile: the
// mental state first, then one entry per schema prompt instruction with the
// profile's current value. Every line is indented four spaces.
func buildUserAdaptation(profile map[string]string, schema *config.SchemaConfig) string {
	entries := []string{
		fmt.Sprintf("- **Mental State:** %s", profile[userstate.DerivedMentalState]),
	}
	for _, field := range schema.Fields() {
		instruction := schema.Instruction(field)
		if instruction == "" {
			continue
		}
		entries = append(entries, fmt.Sprintf("- **%s:** %s\n    %s",
			titleWords(field), profile[field], instruction))
	}

	var lines []string
	for _, entry := range entries {
		for _, line := range strings.Split(entry, "\n") {
			lines = append(lines, "    "+line)
		}
	}
	return strings.Join(lines, "\n")
}

// combinedHistoryText flattens the persisted transcript and the client-held
// session turns into one context string: persisted turns as labelled
// "User:"/"AI:" lines, a blank separator line, then the raw session lines.
func combinedHistoryText(persistent []userstate.Turn, session []datatypes.SessionTurn) string {
	var b strings.Builder
	for _, turn := range persistent {
		fmt.Fprintf(&b, "User: %s\nAI: %s\n", turn.User, turn.System)
	}
	b.WriteString("\n")
	for _, turn := range session {
		fmt.Fprintf(&b, "%s\n%s\n", turn.User, turn.System)
	}
	return b.String()
}

// sessionText flattens only the client-held session turns, the query text
// retrieval runs over.
func sessionText(session []datatypes.SessionTurn) string {
	var b strings.Builder
	for _, turn := range session {
		fmt.Fprintf(&b, "%s\n%s\n", turn.User, turn.System)
	}
	return b.String()
}

// titleWords converts a snake_case field name to a spaced, title-cased
// label: "time_available" becomes "Time Available".
func titleWords(field string) string {
	words := strings.Split(field, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
