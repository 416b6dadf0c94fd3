package notionsync

import (
	"fmt"
	"time"

	"github.com/dvloznov/expense-bot/internal/expense"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/jomei/notionapi"
)

// Property names of the expenses database.
const (
	PropDescription = "Description"
	PropAmount      = "Amount"
	PropCategory    = "Category"
	PropCurrency    = "Currency"
	PropDate        = "Date"
	PropSender      = "Sender"
	PropSource      = "Source"
)

// RequiredProperties lists the database properties and their Notion types.
var RequiredProperties = map[string]notionapi.PropertyConfigType{
	PropDescription: notionapi.PropertyConfigTypeTitle,
	PropAmount:      notionapi.PropertyConfigTypeNumber,
	PropCategory:    notionapi.PropertyConfigTypeSelect,
	PropCurrency:    notionapi.PropertyConfigTypeSelect,
	PropDate:        notionapi.PropertyConfigTypeDate,
	PropSender:      notionapi.PropertyConfigTypeRichText,
	PropSource:      notionapi.PropertyConfigTypeRichText,
}

// ExpenseToNotionProperties maps one recorded expense to page properties.
func ExpenseToNotionProperties(r expense.Record, msg pipeline.Message, currency string) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(r.Description),
		},
		PropAmount: notionapi.NumberProperty{
			Number: r.Amount.InexactFloat64(),
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(r.Category)},
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: currency},
		},
		PropSource: notionapi.RichTextProperty{
			RichText: richText(fmt.Sprintf("telegram %d/%d", msg.ChatID, msg.MessageID)),
		},
	}

	if t, err := time.Parse(expense.DateLayout, r.Date); err == nil {
		d := notionapi.Date(t)
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if msg.SenderName != "" {
		props[PropSender] = notionapi.RichTextProperty{
			RichText: richText(msg.SenderName),
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}
