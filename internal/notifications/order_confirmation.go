package notifications

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const orderConfirmationTemplate = `Dear {{.CustomerName}},

Thank you for your purchase!
Your order #{{.OrderID}} has been confirmed and is now being processed.

**Total Amount:** {{.Total}}

Shipping to: {{.ShippingLine}}, {{.ShippingCity}}, {{.ShippingCountry}}

Best regards,
Your Online Store
`

var (
	confirmationTmpl = template.Must(template.New("order_confirmation").Parse(orderConfirmationTemplate))
	htmlPolicy       = bluemonday.UGCPolicy()
	markdown         = goldmark.New()
)

// OrderConfirmation carries the values rendered into the confirmation mail.
type OrderConfirmation struct {
	To              string
	CustomerName    string
	OrderID         string
	TotalAmount     decimal.Decimal
	Currency        string
	ShippingLine    string
	ShippingCity    string
	ShippingCountry string
}

// RenderOrderConfirmation builds the plain text and sanitised HTML versions of the mail.
func RenderOrderConfirmation(data OrderConfirmation) (Email, error) {
	view := struct {
		OrderConfirmation
		Total string
	}{
		OrderConfirmation: data,
		Total:             FormatAmount(data.TotalAmount, data.Currency),
	}

	var text bytes.Buffer
	if err := confirmationTmpl.Execute(&text, view); err != nil {
		return Email{}, fmt.Errorf("notifications: render confirmation: %w", err)
	}

	var html bytes.Buffer
	if err := markdown.Convert(text.Bytes(), &html); err != nil {
		return Email{}, fmt.Errorf("notifications: convert confirmation: %w", err)
	}

	email := Email{
		To:      strings.TrimSpace(data.To),
		Subject: "Order Confirmation #" + data.OrderID,
		Text:    strings.ReplaceAll(text.String(), "**", ""),
		HTML:    htmlPolicy.Sanitize(html.String()),
	}
	return email, email.Validate()
}

// FormatAmount renders an amount with its ISO currency symbol, e.g. "€ 20.00". Unknown
// currency codes fall back to "<amount> <code>".
func FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.TrimSpace(amount.StringFixed(2) + " " + code)
	}
	printer := message.NewPrinter(language.English)
	return printer.Sprint(currency.Symbol(unit.Amount(amount.InexactFloat64())))
}
