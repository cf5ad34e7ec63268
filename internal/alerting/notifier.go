package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"book-features/internal/model"
	"book-features/internal/validation"
)

// Notification describes a scheduled rebuild whose evaluation fell below the
// out-of-sample floor of its model kind.
type Notification struct {
	At      time.Time
	Symbol  string
	Rows    int
	Floors  map[model.Kind]float64
	Failing []validation.Evaluation
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Degraded returns the evaluations whose out-of-sample score is below the
// floor of their model kind. Kinds without a floor are never reported.
func Degraded(evals []validation.Evaluation, floors map[model.Kind]float64) []validation.Evaluation {
	var out []validation.Evaluation
	for _, e := range evals {
		floor, ok := floors[e.Kind]
		if !ok {
			continue
		}
		if e.Result.OutSample < floor || math.IsNaN(e.Result.OutSample) {
			out = append(out, e)
		}
	}
	return out
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered notification.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Time("at", note.At).
		Str("symbol", note.Symbol).
		Int("failing", len(note.Failing)).
		Msg("score alert sent")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[bookfeatures %s]\n", note.Symbol))
	builder.WriteString(fmt.Sprintf("Run: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Rows: %d\n", note.Rows))
	builder.WriteString("Out-of-sample below floor:\n")
	for _, e := range note.Failing {
		builder.WriteString(fmt.Sprintf("  %s %s: %.4f < %.4f (in-sample %.4f, %d folds)\n",
			e.Target, e.Kind, e.Result.OutSample, note.Floors[e.Kind], e.Result.InSample, len(e.Result.Folds)))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
