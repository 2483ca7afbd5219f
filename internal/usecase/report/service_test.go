package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
)

type fakeCollector struct {
	stats domain.CollectStats
	err   error
	start time.Time
	end   time.Time
}

func (c *fakeCollector) Collect(_ context.Context, _ []domain.SourceRef, start, end time.Time) (domain.CollectStats, error) {
	c.start, c.end = start, end
	return c.stats, c.err
}

type fakeDigester struct {
	digests map[string]string
	errs    map[string]error
}

func (d *fakeDigester) ForChat(_ context.Context, identifier string, _, _ time.Time) (string, error) {
	if err := d.errs[identifier]; err != nil {
		return "", err
	}
	return d.digests[identifier], nil
}

type fakeMessageRepo struct {
	grouped map[string][]domain.Message
}

func (r *fakeMessageRepo) InsertMessage(context.Context, domain.Message) (bool, error) {
	return false, errors.New("не используется")
}

func (r *fakeMessageRepo) ListMessagesByWindow(context.Context, time.Time, time.Time, int64) ([]domain.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) ListMessagesGroupedBySource(context.Context, time.Time, time.Time) (map[string][]domain.Message, error) {
	return r.grouped, nil
}

type savedReport struct {
	id      int64
	content string
	sentAt  *time.Time
}

type fakeReportRepo struct {
	byDate map[string]*savedReport
	nextID int64
}

func (r *fakeReportRepo) SaveReport(_ context.Context, date time.Time, content string) (int64, error) {
	if r.byDate == nil {
		r.byDate = make(map[string]*savedReport)
	}
	key := date.Format("2006-01-02")
	if existing, ok := r.byDate[key]; ok {
		existing.content = content
		return existing.id, nil
	}
	r.nextID++
	r.byDate[key] = &savedReport{id: r.nextID, content: content}
	return r.nextID, nil
}

func (r *fakeReportRepo) MarkReportSent(_ context.Context, reportID int64, at time.Time) error {
	for _, rep := range r.byDate {
		if rep.id == reportID {
			rep.sentAt = &at
			return nil
		}
	}
	return domain.ErrReportNotFound
}

func (r *fakeReportRepo) GetReportByDate(_ context.Context, date time.Time) (domain.Report, error) {
	rep, ok := r.byDate[date.Format("2006-01-02")]
	if !ok {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return domain.Report{ID: rep.id, Date: date, Content: rep.content, SentAt: rep.sentAt}, nil
}

type fakeSender struct {
	sent   []string
	chatID int64
	err    error
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	if s.err != nil {
		return s.err
	}
	s.chatID = chatID
	s.sent = append(s.sent, text)
	return nil
}

type passCache struct{}

func (passCache) Once(_ string, _ time.Duration, fn func() error) error { return fn() }

func chatMessage(id int64, text string) domain.Message {
	return domain.Message{
		SourceID:         2,
		TGMsgID:          id,
		PublishedAt:      time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC),
		Text:             text,
		SourceIdentifier: "@workchat",
		SourceKind:       domain.KindChat,
		SourceTitle:      "Рабочий чат",
		SourceUsername:   "workchat",
	}
}

func channelMessage(id int64, text string) domain.Message {
	return domain.Message{
		SourceID:         1,
		TGMsgID:          id,
		PublishedAt:      time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC),
		Text:             text,
		Link:             "https://t.me/go_news/1",
		SourceIdentifier: "@go_news",
		SourceKind:       domain.KindChannel,
		SourceTitle:      "Go Новости",
		SourceUsername:   "go_news",
	}
}

func newTestService(collector *fakeCollector, digester *fakeDigester, messages *fakeMessageRepo, reports *fakeReportRepo, sender *fakeSender) *Service {
	return NewService(
		collector,
		digester,
		messages,
		reports,
		sender,
		NewFormatter(""),
		passCache{},
		zerolog.Nop(),
		[]domain.SourceRef{{Identifier: "@go_news", Kind: domain.KindChannel}, {Identifier: "@workchat", Kind: domain.KindChat}},
		777,
		time.UTC,
	)
}

func TestRun(t *testing.T) {
	collector := &fakeCollector{stats: domain.CollectStats{TotalSources: 2, TotalMessages: 3, NewMessages: 3}}
	digester := &fakeDigester{digests: map[string]string{"@workchat": "🔹 Релиз"}}
	messages := &fakeMessageRepo{grouped: map[string][]domain.Message{
		"@go_news":  {channelMessage(1, "новость")},
		"@workchat": {chatMessage(10, "обсуждение"), chatMessage(11, "ещё")},
	}}
	reports := &fakeReportRepo{}
	sender := &fakeSender{}
	svc := newTestService(collector, digester, messages, reports, sender)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	content, err := svc.Run(context.Background(), now, true)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	wantStart := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	if !collector.start.Equal(wantStart) || !collector.end.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Fatalf("сбор должен идти по вчерашнему окну: %v - %v", collector.start, collector.end)
	}
	if !strings.Contains(content, "🔹 Релиз") || !strings.Contains(content, "📣 <b>Go Новости</b>") {
		t.Fatalf("сводка должна содержать повестку и канал:\n%s", content)
	}
	if len(sender.sent) != 1 || sender.chatID != 777 {
		t.Fatalf("сводка должна быть отправлена адресату: %+v", sender)
	}

	saved, err := reports.GetReportByDate(context.Background(), wantStart)
	if err != nil {
		t.Fatalf("сводка должна быть сохранена: %v", err)
	}
	if saved.SentAt == nil {
		t.Fatal("после доставки должна стоять отметка отправки")
	}
}

func TestRunNoSend(t *testing.T) {
	reports := &fakeReportRepo{}
	sender := &fakeSender{}
	svc := newTestService(
		&fakeCollector{},
		&fakeDigester{},
		&fakeMessageRepo{grouped: map[string][]domain.Message{"@go_news": {channelMessage(1, "новость")}}},
		reports,
		sender,
	)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	content, err := svc.Run(context.Background(), now, false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if content == "" {
		t.Fatal("прогон должен возвращать текст сводки")
	}
	if len(sender.sent) != 0 {
		t.Fatal("при send=false ничего не отправляется")
	}
	if _, err := reports.GetReportByDate(context.Background(), time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("сводка должна сохраняться и без отправки: %v", err)
	}
}

func TestRunDeliveryFailure(t *testing.T) {
	reports := &fakeReportRepo{}
	sender := &fakeSender{err: errors.New("chat not found")}
	svc := newTestService(
		&fakeCollector{},
		&fakeDigester{},
		&fakeMessageRepo{grouped: map[string][]domain.Message{"@go_news": {channelMessage(1, "новость")}}},
		reports,
		sender,
	)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Run(context.Background(), now, true); err == nil {
		t.Fatal("ожидали ошибку доставки")
	}

	saved, err := reports.GetReportByDate(context.Background(), time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("сводка не должна теряться при сбое доставки: %v", err)
	}
	if saved.SentAt != nil {
		t.Fatal("отметка отправки не ставится без подтверждённой доставки")
	}
}

func TestRunDigestFailureDegrades(t *testing.T) {
	digester := &fakeDigester{errs: map[string]error{"@workchat": errors.New("bothub: неожиданный статус 502")}}
	svc := newTestService(
		&fakeCollector{},
		digester,
		&fakeMessageRepo{grouped: map[string][]domain.Message{"@workchat": {chatMessage(10, "обсуждение")}}},
		&fakeReportRepo{},
		&fakeSender{},
	)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	content, err := svc.Run(context.Background(), now, true)
	if err != nil {
		t.Fatalf("сбой повестки не должен прерывать прогон: %v", err)
	}
	if !strings.Contains(content, "<i>Повестка дня не сгенерирована</i>") {
		t.Fatalf("ожидали заглушку повестки:\n%s", content)
	}
}

func TestRunReportUpsert(t *testing.T) {
	reports := &fakeReportRepo{}
	messages := &fakeMessageRepo{grouped: map[string][]domain.Message{"@go_news": {channelMessage(1, "первая версия")}}}
	svc := newTestService(&fakeCollector{}, &fakeDigester{}, messages, reports, &fakeSender{})

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Run(context.Background(), now, false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	messages.grouped = map[string][]domain.Message{"@go_news": {channelMessage(1, "вторая версия")}}
	if _, err := svc.Run(context.Background(), now, false); err != nil {
		t.Fatalf("не ожидали ошибку повторного прогона: %v", err)
	}

	if len(reports.byDate) != 1 {
		t.Fatalf("за дату должна существовать одна сводка, получили %d", len(reports.byDate))
	}
	saved, err := reports.GetReportByDate(context.Background(), time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("сводка должна быть доступна по дате: %v", err)
	}
	if !strings.Contains(saved.Content, "вторая версия") {
		t.Fatal("повторное сохранение должно перезаписывать текст")
	}
}
