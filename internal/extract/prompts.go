package extract

import (
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/expense"
	"google.golang.org/genai"
)

// buildExtractionPrompt embeds the user's text in the fixed instructions.
func buildExtractionPrompt(text, currency string) string {
	var b strings.Builder
	b.WriteString("You are an expense extraction assistant for a personal expense tracker.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Read the message below and list every expense it mentions.\n")
	b.WriteString("- Output a JSON array of objects. Output [] if the message contains no expense.\n\n")

	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"description\": string, a short label for what was bought\n")
	fmt.Fprintf(&b, "- \"amount\": number, non-negative, in %s\n", currencyName(currency))
	b.WriteString("- \"category\": string, one of the categories below\n\n")

	b.WriteString(buildCategoriesPrompt())

	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Assume amounts are in %s unless the message states another currency.\n", currencyName(currency))
	b.WriteString("- Never invent amounts. If a price is missing, use 0.\n")
	b.WriteString("- Split messages listing several purchases into one object per purchase.\n")
	b.WriteString("- Do not include dates.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n\n")

	b.WriteString("Message:\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

func buildCategoriesPrompt() string {
	var b strings.Builder
	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range expense.Categories() {
		b.WriteString("  - " + string(c) + "\n")
	}
	b.WriteString("If you are unsure, use \"Other\".\n")
	b.WriteString("Taxi, bus, jeepney, Grab and fuel are \"Transportation\". Meals, snacks and groceries are \"Food\".\n\n")
	return b.String()
}

func currencyName(code string) string {
	switch strings.ToUpper(code) {
	case "", "PHP":
		return "Philippine Peso (PHP)"
	default:
		return strings.ToUpper(code)
	}
}

// responseSchema constrains the model output to the record array shape.
func responseSchema() *genai.Schema {
	enum := make([]string, 0, len(expense.Categories()))
	for _, c := range expense.Categories() {
		enum = append(enum, string(c))
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"description": {Type: genai.TypeString, Description: "What was bought"},
				"amount":      {Type: genai.TypeNumber, Description: "Amount spent", Minimum: genai.Ptr(0.0)},
				"category":    {Type: genai.TypeString, Enum: enum},
			},
			PropertyOrdering: []string{"description", "amount", "category"},
			Required:         []string{"description", "amount", "category"},
		},
	}
}
