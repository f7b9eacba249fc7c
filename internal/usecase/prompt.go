package usecase

import (
	"errors"
	"fmt"
	"strings"

	"marketing-copilot/internal/integrations/gemini"
)

const (
	modelsDocURL  = "https://ai.google.dev/gemini-api/docs/models"
	apiKeyDocURL  = "https://aistudio.google.com/app/apikey"
	emptyResponse = "⚠️ I received an empty response from the model. Please try rephrasing your request."
)

var quickPrompts = []string{
	"Generate a launch campaign for my SaaS product",
	"Write three social media posts announcing our spring sale",
	"Analyze the target audience for an eco-friendly skincare brand",
	"What marketing strategy should a new local coffee shop follow?",
	"Plan a multi-channel campaign across email, social and paid search",
	"How can I improve the conversion rate of my landing page?",
}

// QuickPrompts returns a copy of the quick prompt catalog.
func QuickPrompts() []string {
	return append([]string(nil), quickPrompts...)
}

// DefaultPreamble returns the instruction text prepended to every prompt.
func DefaultPreamble() string {
	return strings.Join([]string{
		"You are an expert AI marketing strategist and campaign assistant.",
		"You help businesses plan, create and optimize their marketing.",
		"",
		"Your capabilities:",
		capabilityList(),
		"",
		"Give specific, actionable recommendations. Use headings and bullet points where they help,",
		"and ask a clarifying question when the request is missing key details.",
	}, "\n")
}

// greeting is the first assistant turn of every unlocked session.
func greeting() string {
	return strings.Join([]string{
		"👋 Hi! I'm your AI marketing assistant. Here is what I can help you with:",
		"",
		capabilityList(),
		"",
		"Ask me anything, or pick one of the quick prompts to get started.",
	}, "\n")
}

func capabilityList() string {
	return strings.Join([]string{
		"1) Campaign generation: complete campaign concepts, messaging and timelines.",
		"2) Content creation: ad copy, social posts, emails and blog outlines.",
		"3) Audience analysis: personas, segments and positioning.",
		"4) Strategy advisory: go-to-market plans, budgets and priorities.",
		"5) Multi-channel planning: coordinated plans across email, social, search and more.",
		"6) Performance optimization: KPIs, A/B test ideas and conversion improvements.",
	}, "\n")
}

// buildPrompt combines the preamble with the latest user text. Earlier turns
// are intentionally not replayed.
func buildPrompt(preamble, userText string) string {
	return preamble + "\n\nUser: " + userText + "\n\nAssistant:"
}

// failureMessage extracts the human-readable part of a completion failure.
func failureMessage(err error) string {
	var statusErr *gemini.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return "API request failed"
	}
	return err.Error()
}

func formatFailure(err error, model string) string {
	msg := failureMessage(err)
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Error: %s\n\n", msg)
	if strings.Contains(strings.ToLower(msg), "not found") {
		fmt.Fprintf(&b, "The model %q may not be available for your API key. See %s for the list of available models.\n\n", model, modelsDocURL)
	}
	fmt.Fprintf(&b, "Please verify your API key is correct and has access to the Gemini API. You can get a key at %s", apiKeyDocURL)
	return b.String()
}
