package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultWebhookTimeout = 10 * time.Second

// SlackNotifier posts Block Kit messages to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	printer    *message.Printer
	now        func() time.Time
}

// NewSlackNotifier returns a notifier for webhookURL. An empty URL yields a
// Noop so callers never have to check.
func NewSlackNotifier(webhookURL string, logger *slog.Logger) Notifier {
	if webhookURL == "" {
		return Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		logger:     logger,
		printer:    message.NewPrinter(language.English),
		now:        time.Now,
	}
}

func (n *SlackNotifier) Enabled() bool { return true }

// NewDeposit announces a deposit as it arrives.
func (n *SlackNotifier) NewDeposit(ctx context.Context, d Deposit) error {
	amount := n.money(d.Amount)
	blocks := []slack.Block{
		header("💰 New Deposit Received"),
		fields(
			"*Amount:*\n"+amount,
			"*From:*\n"+d.Counterparty,
			"*Account:*\n"+d.AccountName,
			"*Date:*\n"+dateOrToday(d.Date, n.now),
		),
		note(fmt.Sprintf("Transaction ID: `%s...`", truncate(d.TransactionID, 16))),
	}
	return n.post(ctx, fmt.Sprintf("New deposit: %s from %s", amount, d.Counterparty), blocks)
}

// Reconciled announces a deposit settled against an invoice.
func (n *SlackNotifier) Reconciled(ctx context.Context, r Reconciliation) error {
	amount := n.money(r.Amount)
	blocks := []slack.Block{
		header("✅ Payment Reconciled"),
		fields(
			"*Amount:*\n"+amount,
			"*Invoice:*\n"+r.InvoiceName,
			"*From:*\n"+r.Counterparty,
			fmt.Sprintf("*Match:*\n%s %s (%.0f%%)", confidenceMarker(r.Confidence), r.MatchType, r.Confidence*100),
		),
	}
	return n.post(ctx, fmt.Sprintf("Reconciled %s to %s", amount, r.InvoiceName), blocks)
}

// Unmatched asks for manual attention on a deposit with no invoice.
func (n *SlackNotifier) Unmatched(ctx context.Context, d Deposit) error {
	amount := n.money(d.Amount)
	blocks := []slack.Block{
		header("⚠️ Unmatched Deposit"),
		slack.NewSectionBlock(
			markdown(fmt.Sprintf("A deposit of *%s* from *%s* could not be automatically matched to an invoice.", amount, d.Counterparty)),
			nil, nil),
		fields(
			"*Amount:*\n"+amount,
			"*From:*\n"+d.Counterparty,
			"*Date:*\n"+dateOrToday(d.Date, n.now),
		),
		note("💡 Create a matching invoice in Odoo or manually reconcile this payment."),
	}
	return n.post(ctx, fmt.Sprintf("Unmatched deposit: %s from %s", amount, d.Counterparty), blocks)
}

// Summary totals a cycle. Cycles with nothing new are not announced.
func (n *SlackNotifier) Summary(ctx context.Context, s CycleSummary) error {
	if s.NewTransactions == 0 {
		return nil
	}
	blocks := []slack.Block{
		header("📊 Mercury Sync Summary"),
		fields(
			fmt.Sprintf("*New Transactions:*\n%d", s.NewTransactions),
			fmt.Sprintf("*Deposits:*\n%d", s.Deposits),
			fmt.Sprintf("*Auto-Reconciled:*\n%d", s.Reconciled),
			fmt.Sprintf("*Needs Review:*\n%d", s.Unmatched),
		),
	}
	if s.TotalDeposited.IsPositive() {
		blocks = append(blocks, note(fmt.Sprintf("💵 Total deposited: *%s*", n.money(s.TotalDeposited))))
	}
	return n.post(ctx, fmt.Sprintf("Mercury sync: %d new, %d reconciled", s.NewTransactions, s.Reconciled), blocks)
}

func (n *SlackNotifier) post(ctx context.Context, text string, blocks []slack.Block) error {
	msg := &slack.WebhookMessage{
		Text:   text,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		n.logger.Warn("Failed to send Slack notification", "error", err)
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	n.logger.Debug("Slack notification sent", "text", text)
	return nil
}

func (n *SlackNotifier) money(amount decimal.Decimal) string {
	return n.printer.Sprintf("$%.2f", amount.Round(2).InexactFloat64())
}

func header(text string) slack.Block {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func fields(texts ...string) slack.Block {
	objs := make([]*slack.TextBlockObject, 0, len(texts))
	for _, t := range texts {
		objs = append(objs, markdown(t))
	}
	return slack.NewSectionBlock(nil, objs, nil)
}

func note(text string) slack.Block {
	return slack.NewContextBlock("", markdown(text))
}

func confidenceMarker(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "🟢"
	case confidence >= 0.5:
		return "🟡"
	default:
		return "🟠"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
