package mtproto

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"tg-gazeta/internal/domain"
)

func TestParseAlias(t *testing.T) {
	cases := map[string]string{
		"@go_news":               "go_news",
		"https://t.me/go_news":   "go_news",
		"t.me/WorkChat":          "workchat",
		"  plain_identifier   ": "plain_identifier",
	}
	for input, want := range cases {
		got, err := parseAlias(input)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("для %q ожидали %q, получили %q", input, want, got)
		}
	}
}

func TestParseAliasInvalid(t *testing.T) {
	if _, err := parseAlias("???"); err == nil {
		t.Fatal("ожидали ошибку для некорректного идентификатора")
	}
}

func TestPeerFromChatsBroadcast(t *testing.T) {
	peer, err := peerFromChats([]tg.ChatClass{
		&tg.Channel{ID: 100, AccessHash: 7, Title: "Новости", Username: "go_news", Broadcast: true},
	}, "go_news")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if peer.meta.Kind != domain.KindChannel {
		t.Fatalf("broadcast-канал должен иметь тип channel, получили %s", peer.meta.Kind)
	}
	if peer.meta.Title != "Новости" || peer.meta.TGID != 100 {
		t.Fatalf("неожиданные метаданные: %+v", peer.meta)
	}
}

func TestPeerFromChatsMegagroup(t *testing.T) {
	peer, err := peerFromChats([]tg.ChatClass{
		&tg.Channel{ID: 200, Title: "Рабочий чат", Username: "workchat", Megagroup: true},
	}, "workchat")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if peer.meta.Kind != domain.KindChat {
		t.Fatalf("супергруппа должна иметь тип chat, получили %s", peer.meta.Kind)
	}
}

func TestPeerFromChatsEmpty(t *testing.T) {
	if _, err := peerFromChats(nil, "missing"); err == nil {
		t.Fatal("ожидали ошибку для пустого списка чатов")
	}
}

func TestMessageLink(t *testing.T) {
	public := resolvedPeer{username: "go_news", tgID: 100}
	if link := messageLink(public, 42); link != "https://t.me/go_news/42" {
		t.Fatalf("неожиданная ссылка: %s", link)
	}
	private := resolvedPeer{tgID: 300}
	if link := messageLink(private, 7); link != "https://t.me/c/300/7" {
		t.Fatalf("неожиданная ссылка приватного чата: %s", link)
	}
}

func TestCollectSenders(t *testing.T) {
	senders := make(map[int64]string)
	collectSenders(senders, []tg.UserClass{
		&tg.User{ID: 1, FirstName: "Анна", LastName: "Иванова"},
		&tg.User{ID: 2, Username: "bot_user"},
	})
	if senders[1] != "Анна Иванова" {
		t.Fatalf("ожидали полное имя, получили %q", senders[1])
	}
	if senders[2] != "bot_user" {
		t.Fatalf("ожидали username как запасное имя, получили %q", senders[2])
	}
}

func TestFilterBatchWindowBoundaries(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	// История приходит от новых к старым.
	raw := []tg.MessageClass{
		&tg.Message{ID: 40, Date: int(end.Unix()), Message: "уже следующие сутки"},
		&tg.Message{ID: 30, Date: int(start.Add(12 * time.Hour).Unix()), Message: "полдень"},
		&tg.Message{ID: 20, Date: int(start.Unix()), Message: "полночь"},
		&tg.Message{ID: 10, Date: int(start.Add(-time.Second).Unix()), Message: "вчера 23:59:59"},
	}

	kept, lastID, stop := filterBatch(raw, start, end)
	if len(kept) != 2 || kept[0].ID != 30 || kept[1].ID != 20 {
		t.Fatalf("в окно должны попадать только сообщения суток: %+v", kept)
	}
	if !stop {
		t.Fatal("сообщение старше начала окна должно останавливать выгрузку")
	}
	if lastID != 10 {
		t.Fatalf("пагинация должна сдвигаться до последнего элемента, получили %d", lastID)
	}
}

func TestFilterBatchServiceMessagesAdvanceOffset(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	raw := []tg.MessageClass{
		&tg.MessageService{ID: 55, Date: int(start.Add(time.Hour).Unix())},
		&tg.MessageEmpty{ID: 54},
		&tg.MessageService{ID: 53, Date: int(start.Add(time.Minute).Unix())},
	}

	kept, lastID, stop := filterBatch(raw, start, end)
	if len(kept) != 0 {
		t.Fatalf("служебные сообщения не попадают в окно: %+v", kept)
	}
	if stop {
		t.Fatal("служебный батч не должен останавливать выгрузку")
	}
	if lastID != 53 {
		t.Fatalf("батч из служебных записей должен сдвигать пагинацию, получили %d", lastID)
	}
}

func TestBuildMessageWindowBoundaries(t *testing.T) {
	published := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	peer := resolvedPeer{username: "workchat", tgID: 5}
	c := &Client{}
	msg := c.buildMessage(peer, &tg.Message{ID: 9, Message: "привет", FromID: &tg.PeerUser{UserID: 1}}, map[int64]string{1: "Анна"}, published)
	if msg.SenderName != "Анна" || msg.SenderID != 1 {
		t.Fatalf("ожидали атрибуцию отправителя: %+v", msg)
	}
	if !msg.PublishedAt.Equal(published) {
		t.Fatalf("неожиданное время публикации: %v", msg.PublishedAt)
	}
}
