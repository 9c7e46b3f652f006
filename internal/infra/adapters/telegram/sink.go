package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/format"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/infra/i18n"
	"subscription-ledger/internal/infra/metrics"
)

var _ adapter.NotificationSink = (*Sink)(nil)

const (
	// inviteTTL bounds how long a one-shot group invite stays usable.
	inviteTTL  = 24 * time.Hour
	dateLayout = "2006-01-02 15:04 MST"
)

// botAPI is the part of *tgbotapi.BotAPI the sink needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ActiveCounter reports the number of live entitlements for the presence line.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Sink delivers lifecycle effects to Telegram. A role id is the numeric id of
// the premium group chat the plan grants access to; granting unbans the user and
// sends a single-use invite link, revoking removes the user from the group.
type Sink struct {
	bot      botAPI
	users    repository.UserRepository
	counter  ActiveCounter
	presence int64
	delay    time.Duration
	tr       *i18n.Translator
	log      *zerolog.Logger

	mu       sync.Mutex
	lastSend time.Time
}

// NewSink connects to the Bot API with cfg.Token.
func NewSink(cfg config.BotConfig, users repository.UserRepository, counter ActiveCounter, logger *zerolog.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("bot token is empty")
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Language)
	if err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	bot.Debug = cfg.Debug
	return newSink(bot, cfg, users, counter, tr, logger), nil
}

func newSink(bot botAPI, cfg config.BotConfig, users repository.UserRepository, counter ActiveCounter, tr *i18n.Translator, logger *zerolog.Logger) *Sink {
	l := logger.With().Str("component", "TelegramSink").Logger()
	return &Sink{
		bot:      bot,
		users:    users,
		counter:  counter,
		presence: cfg.PresenceChatID,
		delay:    cfg.MessageDelay,
		tr:       tr,
		log:      &l,
	}
}

func (s *Sink) NotifyPurchased(ctx context.Context, user *model.User, plan *model.Plan, sub *model.Subscription, paid decimal.Decimal, isRenewal bool) error {
	if user == nil || plan == nil || sub == nil {
		return domain.ErrInvalidArgument
	}
	key := "purchased"
	if isRenewal {
		key = "renewed"
	}
	text := s.tr.T(key, plan.Title,
		format.Amount(paid),
		format.Duration(plan.DurationDays),
		sub.ExpiresAt.UTC().Format(dateLayout))
	return s.send(ctx, user.TelegramID, text)
}

func (s *Sink) NotifyExpiryWarning(ctx context.Context, sub *model.Subscription) error {
	tgID, err := s.chatOf(ctx, sub)
	if err != nil {
		return err
	}
	text := s.tr.T("expiry_warning", sub.ExpiresAt.UTC().Format(dateLayout))
	return s.send(ctx, tgID, text)
}

func (s *Sink) NotifyExpired(ctx context.Context, sub *model.Subscription) error {
	tgID, err := s.chatOf(ctx, sub)
	if err != nil {
		return err
	}
	text := s.tr.T("expired", format.Duration(sub.DurationDays))
	return s.send(ctx, tgID, text)
}

func (s *Sink) GrantRole(ctx context.Context, userID, roleID string) error {
	chatID, tgID, err := s.member(ctx, userID, roleID)
	if err != nil {
		return err
	}
	// Lift a ban left by an earlier expiry; a no-op otherwise.
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: tgID},
		OnlyIfBanned:     true,
	}
	if err := s.request(ctx, unban); err != nil {
		return fmt.Errorf("telegram: unban %d in %d: %w", tgID, chatID, err)
	}

	link, err := s.inviteLink(ctx, chatID)
	if err != nil {
		return err
	}
	return s.send(ctx, tgID, s.tr.T("group_invite", link))
}

func (s *Sink) RevokeRole(ctx context.Context, userID, roleID string) error {
	chatID, tgID, err := s.member(ctx, userID, roleID)
	if err != nil {
		return err
	}
	member := tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: tgID}
	if err := s.request(ctx, tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return fmt.Errorf("telegram: remove %d from %d: %w", tgID, chatID, err)
	}
	// Unban right away so a later purchase can rejoin through an invite.
	if err := s.request(ctx, tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}); err != nil {
		s.log.Warn().Err(err).Int64("chat_id", chatID).Int64("tg_id", tgID).Msg("unban after removal failed")
	}
	return nil
}

// RefreshPresence recounts live entitlements, updates the gauge and, when a
// presence chat is configured, rewrites its description.
func (s *Sink) RefreshPresence(ctx context.Context) error {
	n, err := s.counter.CountActive(ctx)
	if err != nil {
		return err
	}
	metrics.SetActiveSubscriptions(n)
	if s.presence == 0 {
		return nil
	}
	cfg := tgbotapi.SetChatDescriptionConfig{
		ChatID:      s.presence,
		Description: s.tr.T("presence", format.Amount(decimal.NewFromInt(int64(n)))),
	}
	err = s.request(ctx, cfg)
	if err != nil && strings.Contains(err.Error(), "not modified") {
		return nil
	}
	return err
}

func (s *Sink) inviteLink(ctx context.Context, chatID int64) (string, error) {
	if err := s.throttle(ctx); err != nil {
		return "", err
	}
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		ExpireDate:  int(time.Now().Add(inviteTTL).Unix()),
		MemberLimit: 1,
	}
	resp, err := s.bot.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("telegram: invite link for %d: %w", chatID, err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("telegram: decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("telegram: empty invite link for %d", chatID)
	}
	return link.InviteLink, nil
}

func (s *Sink) member(ctx context.Context, userID, roleID string) (chatID, tgID int64, err error) {
	chatID, err = strconv.ParseInt(strings.TrimSpace(roleID), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("telegram: role %q is not a chat id: %w", roleID, domain.ErrInvalidArgument)
	}
	u, err := s.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram: resolve user %s: %w", userID, err)
	}
	return chatID, u.TelegramID, nil
}

func (s *Sink) chatOf(ctx context.Context, sub *model.Subscription) (int64, error) {
	if sub == nil {
		return 0, domain.ErrInvalidArgument
	}
	u, err := s.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		return 0, fmt.Errorf("telegram: resolve user %s: %w", sub.UserID, err)
	}
	return u.TelegramID, nil
}

func (s *Sink) send(ctx context.Context, tgID int64, text string) error {
	if err := s.throttle(ctx); err != nil {
		return err
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(tgID, text)); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", tgID, err)
	}
	return nil
}

func (s *Sink) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := s.throttle(ctx); err != nil {
		return err
	}
	_, err := s.bot.Request(c)
	return err
}

// throttle spaces outgoing calls by at least the configured delay.
func (s *Sink) throttle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.delay <= 0 {
		return nil
	}
	s.mu.Lock()
	wait := time.Until(s.lastSend.Add(s.delay))
	if wait < 0 {
		wait = 0
	}
	s.lastSend = time.Now().Add(wait)
	s.mu.Unlock()

	if wait == 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
