// Package render turns pipeline and subscription data into the HTML-flavoured
// chat messages users see.
package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lflhelper/fixtures-bot/internal/fixtures"
)

// Layouts used for parsing upstream timestamps and displaying local times.
const (
	UpstreamLayout = "2006-01-02T15:04:05.999999Z"
	MatchLayout    = "02.01.2006, 15:04"
	DateTimeLayout = "02.01.2006 15:04"
	DateLayout     = "02.01.2006"
)

// DefaultOffset shifts upstream UTC times to Moscow time.
const DefaultOffset = 3 * time.Hour

// Fixed user-facing texts.
const (
	NoScheduleText       = "На сайте расписания нет."
	NoTeamsText          = "Команды не найдены или ошибка соединения с сайтом ЛФЛ."
	ScheduleFailedText   = "Команды найдены, но расписание сейчас недоступно. Попробуйте позже."
	NotSubscribedText    = "У вас нет активной подписки."
	SubscribersOnlyText  = "Функция доступна только подписчикам."
	AskTeamText          = "Напишите название вашей команды (как на сайте ЛФЛ):"
	FeedbackThanksText   = "Спасибо! Мы получили ваш отзыв."
	PaymentCanceledText  = "❌ Оплата была отменена."
	PaymentUnsettledText = "⚠️ Мы не получили подтверждение оплаты. Если деньги списались, напишите администратору."
	PaymentFailedText    = "Ошибка при создании платежа. Попробуйте позже."
)

// Formatter renders times in a fixed display zone.
type Formatter struct {
	loc *time.Location
}

// New returns a Formatter that displays times shifted by offset from UTC.
func New(offset time.Duration) Formatter {
	return Formatter{loc: time.FixedZone("local", int(offset.Seconds()))}
}

// Default returns a Formatter using DefaultOffset.
func Default() Formatter {
	return New(DefaultOffset)
}

func (f Formatter) location() *time.Location {
	if f.loc == nil {
		return time.FixedZone("local", int(DefaultOffset.Seconds()))
	}
	return f.loc
}

// FormatMatchTime converts an upstream timestamp to display form.
// Unparseable input is returned unchanged.
func (f Formatter) FormatMatchTime(raw string) string {
	t, err := time.Parse(UpstreamLayout, raw)
	if err != nil {
		return raw
	}
	return t.In(f.location()).Format(MatchLayout)
}

// FormatDateTime renders an instant as date and minutes in the display zone.
func (f Formatter) FormatDateTime(t time.Time) string {
	return t.In(f.location()).Format(DateTimeLayout)
}

// FormatDate renders an optional instant as a date, or "-" when unset.
func (f Formatter) FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.In(f.location()).Format(DateLayout)
}

// TeamMessage renders one resolved team as a chat message.
func (f Formatter) TeamMessage(team fixtures.ResolvedTeam) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(team.TeamName))
	if !team.Result.Available() {
		b.WriteString(NoScheduleText)
		return b.String()
	}
	for _, m := range team.Result.Fixtures {
		fmt.Fprintf(&b, "📅 %s\n", f.FormatMatchTime(m.MatchDateTime))
		fmt.Fprintf(&b, "🏟 %s (%s)\n", html.EscapeString(m.StadiumName), html.EscapeString(m.StadiumAddress))
		fmt.Fprintf(&b, "⚽ <b>%s 🆚 %s</b>\n\n", html.EscapeString(m.HomeClubName), html.EscapeString(m.AwayClubName))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Messages renders the summary followed by one message per team.
func (f Formatter) Messages(report fixtures.Report) []string {
	out := make([]string, 0, len(report.Teams)+1)
	out = append(out, Summary(report))
	for _, team := range report.Teams {
		out = append(out, f.TeamMessage(team))
	}
	return out
}

// Summary describes the outcome of a search before the per-team messages.
func Summary(report fixtures.Report) string {
	switch {
	case report.Resolved == 0:
		return NoTeamsText
	case report.AllFailed():
		return ScheduleFailedText
	default:
		return fmt.Sprintf("Найдено команд: %d", len(report.Teams))
	}
}

// SearchingMessage acknowledges a team query.
func SearchingMessage(query string) string {
	return fmt.Sprintf("Ищу расписание для команды: <b>%s</b>...", html.EscapeString(query))
}

// SubscriptionInfo renders the subscription status card.
func (f Formatter) SubscriptionInfo(active bool, start, end *time.Time) string {
	status := "❌ Не активна"
	if active {
		status = "✅ Активна"
	}
	return fmt.Sprintf("<b>Информация о подписке:</b>\nСтатус: %s\nНачало: %s\nОкончание: %s",
		status, f.FormatDate(start), f.FormatDate(end))
}

// SubscriptionActivated confirms a settled payment.
func (f Formatter) SubscriptionActivated(start, end time.Time) string {
	return fmt.Sprintf("✅ <b>Подписка успешно активирована!</b>\n"+
		"📅 Дата начала: %s\n"+
		"⏳ Длительность: до %s\n"+
		"Теперь вы можете использовать все функции бота!",
		f.FormatDateTime(start), f.FormatDateTime(end))
}

// CheckoutMessage hands the user the payment link.
func CheckoutMessage(confirmationURL string) string {
	return fmt.Sprintf("Ссылка на оплату: %s\n\n"+
		"После оплаты бот <b>автоматически</b> активирует подписку в течение 1-2 минут.\n"+
		"Ничего нажимать не нужно.", confirmationURL)
}
