package mtproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/metrics"
)

// ErrNotAuthorized возвращается, когда файл сессии отсутствует или устарел.
var ErrNotAuthorized = errors.New("сессия MTProto не авторизована")

var aliasRegex = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{4,})$`)

const historyBatchLimit = 100

// Client реализует domain.MessageFetcher через gotd.
type Client struct {
	client  *telegram.Client
	limiter *RateLimiter
	phone   string
	log     zerolog.Logger

	mu    sync.Mutex
	peers map[string]resolvedPeer
}

type resolvedPeer struct {
	input    tg.InputPeerClass
	meta     domain.SourceMeta
	username string
	tgID     int64
}

// NewClient создаёт MTProto клиент с файловой сессией.
func NewClient(apiID int, apiHash, sessionFile, phone string, rps float64, log zerolog.Logger) *Client {
	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	})
	return &Client{
		client:  client,
		limiter: NewRateLimiter(rps, 1),
		phone:   phone,
		log:     log,
		peers:   make(map[string]resolvedPeer),
	}
}

// Run выполняет fn внутри открытой сессии MTProto, авторизуясь при необходимости.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("статус авторизации: %w", err)
		}
		if !status.Authorized {
			if c.phone == "" {
				return ErrNotAuthorized
			}
			flow := auth.NewFlow(terminalAuth{phone: c.phone}, auth.SendCodeOptions{})
			if err := flow.Run(ctx, c.client.Auth()); err != nil {
				return fmt.Errorf("авторизация: %w", err)
			}
			c.log.Info().Msg("mtproto: авторизация выполнена, сессия сохранена")
		}
		return fn(ctx)
	})
}

// Resolve возвращает метаданные источника по @username или ссылке t.me.
func (c *Client) Resolve(ctx context.Context, identifier string) (domain.SourceMeta, error) {
	peer, err := c.resolvePeer(ctx, identifier)
	if err != nil {
		return domain.SourceMeta{}, err
	}
	return peer.meta, nil
}

func (c *Client) resolvePeer(ctx context.Context, identifier string) (resolvedPeer, error) {
	c.mu.Lock()
	if peer, ok := c.peers[identifier]; ok {
		c.mu.Unlock()
		return peer, nil
	}
	c.mu.Unlock()

	username, err := parseAlias(identifier)
	if err != nil {
		return resolvedPeer{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return resolvedPeer{}, err
	}

	start := time.Now()
	resolved, err := c.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	metrics.ObserveNetworkRequest("mtproto", "resolve_username", username, start, err)
	if err != nil {
		if wait := floodWaitSeconds(err); wait > 0 {
			c.log.Warn().Int("wait_seconds", wait).Msg("mtproto: FLOOD_WAIT при резолве")
			c.limiter.SetFloodWait(wait)
		}
		return resolvedPeer{}, fmt.Errorf("резолв %s: %w", identifier, err)
	}

	peer, err := peerFromChats(resolved.Chats, username)
	if err != nil {
		return resolvedPeer{}, fmt.Errorf("резолв %s: %w", identifier, err)
	}

	c.mu.Lock()
	c.peers[identifier] = peer
	c.mu.Unlock()
	return peer, nil
}

func peerFromChats(chats []tg.ChatClass, username string) (resolvedPeer, error) {
	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			kind := domain.KindChat
			if ch.Broadcast {
				kind = domain.KindChannel
			}
			return resolvedPeer{
				input:    &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
				meta:     domain.SourceMeta{TGID: ch.ID, Kind: kind, Title: ch.Title, Username: ch.Username},
				username: ch.Username,
				tgID:     ch.ID,
			}, nil
		case *tg.Chat:
			return resolvedPeer{
				input:    &tg.InputPeerChat{ChatID: ch.ID},
				meta:     domain.SourceMeta{TGID: ch.ID, Kind: domain.KindChat, Title: ch.Title, Username: username},
				username: username,
				tgID:     ch.ID,
			}, nil
		}
	}
	return resolvedPeer{}, errors.New("идентификатор не является каналом или чатом")
}

// FetchWindow возвращает сообщения окна [start, end) в порядке от новых к
// старым. Выгрузка останавливается на первом сообщении старше start.
func (c *Client) FetchWindow(ctx context.Context, identifier string, start, end time.Time) ([]domain.Message, error) {
	peer, err := c.resolvePeer(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var (
		messages []domain.Message
		offsetID int
		done     bool
	)
	// Первый запрос позиционируется по дате конца окна, дальше листаем по ID.
	offsetDate := int(end.Unix())

	for !done {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		began := time.Now()
		history, err := c.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:       peer.input,
			OffsetID:   offsetID,
			OffsetDate: offsetDate,
			Limit:      historyBatchLimit,
		})
		metrics.ObserveNetworkRequest("mtproto", "get_history", identifier, began, err)
		if err != nil {
			if wait := floodWaitSeconds(err); wait > 0 {
				c.log.Warn().Int("wait_seconds", wait).Msg("mtproto: FLOOD_WAIT при выгрузке истории")
				c.limiter.SetFloodWait(wait)
			}
			return nil, fmt.Errorf("история %s: %w", identifier, err)
		}

		raw, senders := unpackHistory(history)
		if len(raw) == 0 {
			break
		}

		kept, lastID, stop := filterBatch(raw, start, end)
		if lastID != 0 {
			offsetID = lastID
		}
		done = stop
		for _, msg := range kept {
			messages = append(messages, c.buildMessage(peer, msg, senders, time.Unix(int64(msg.Date), 0)))
		}
		offsetDate = 0
	}

	return messages, nil
}

// filterBatch отбирает из батча истории сообщения окна [start, end).
// Возвращает id последнего просмотренного элемента для пагинации: он
// сдвигается и на служебных сообщениях, иначе батч из одних сервисных
// записей зациклил бы выгрузку. stop=true означает, что встретилось
// сообщение старше start и листать дальше не нужно.
func filterBatch(raw []tg.MessageClass, start, end time.Time) (kept []*tg.Message, lastID int, stop bool) {
	for _, msgClass := range raw {
		if id, ok := messageClassID(msgClass); ok {
			lastID = id
		}
		msg, ok := msgClass.(*tg.Message)
		if !ok {
			continue
		}
		published := time.Unix(int64(msg.Date), 0)
		if published.Before(start) {
			stop = true
			break
		}
		// Защита от включающей границы на стороне Telegram.
		if !published.Before(end) {
			continue
		}
		kept = append(kept, msg)
	}
	return kept, lastID, stop
}

func messageClassID(msg tg.MessageClass) (int, bool) {
	switch m := msg.(type) {
	case *tg.Message:
		return m.ID, true
	case *tg.MessageService:
		return m.ID, true
	case *tg.MessageEmpty:
		return m.ID, true
	}
	return 0, false
}

func unpackHistory(history tg.MessagesMessagesClass) ([]tg.MessageClass, map[int64]string) {
	senders := make(map[int64]string)
	var raw []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
		collectSenders(senders, h.Users)
	case *tg.MessagesMessages:
		raw = h.Messages
		collectSenders(senders, h.Users)
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
		collectSenders(senders, h.Users)
	}
	return raw, senders
}

func collectSenders(into map[int64]string, users []tg.UserClass) {
	for _, userClass := range users {
		user, ok := userClass.(*tg.User)
		if !ok {
			continue
		}
		name := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if name == "" {
			name = user.Username
		}
		into[user.ID] = name
	}
}

func (c *Client) buildMessage(peer resolvedPeer, msg *tg.Message, senders map[int64]string, published time.Time) domain.Message {
	out := domain.Message{
		TGMsgID:     int64(msg.ID),
		PublishedAt: published,
		Text:        msg.Message,
		Link:        messageLink(peer, msg.ID),
	}
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		out.SenderID = from.UserID
		out.SenderName = senders[from.UserID]
	}
	return out
}

func messageLink(peer resolvedPeer, msgID int) string {
	if peer.username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", peer.username, msgID)
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", peer.tgID, msgID)
}

func parseAlias(input string) (string, error) {
	matches := aliasRegex.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) < 2 {
		return "", fmt.Errorf("некорректный идентификатор источника: %q", input)
	}
	return strings.ToLower(matches[1]), nil
}

// terminalAuth запрашивает код подтверждения из терминала при первом запуске.
type terminalAuth struct {
	phone string
}

func (a terminalAuth) Phone(_ context.Context) (string, error) { return a.phone, nil }

func (a terminalAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Пароль 2FA: ")
	return readLine()
}

func (a terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Код из Telegram: ")
	return readLine()
}

func (a terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("регистрация нового аккаунта не поддерживается")
}

func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
