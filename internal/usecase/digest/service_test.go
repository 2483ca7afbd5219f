package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
)

type fakeSourceRepo struct {
	source domain.Source
	err    error
}

func (r *fakeSourceRepo) UpsertSource(context.Context, string, domain.SourceKind, string, string) (int64, error) {
	return 0, errors.New("не используется")
}

func (r *fakeSourceRepo) GetSourceByIdentifier(context.Context, string) (domain.Source, error) {
	return r.source, r.err
}

func (r *fakeSourceRepo) ListSources(context.Context) ([]domain.Source, error) {
	return nil, nil
}

type fakeMessageRepo struct {
	msgs []domain.Message
	err  error
}

func (r *fakeMessageRepo) InsertMessage(context.Context, domain.Message) (bool, error) {
	return false, errors.New("не используется")
}

func (r *fakeMessageRepo) ListMessagesByWindow(context.Context, time.Time, time.Time, int64) ([]domain.Message, error) {
	return r.msgs, r.err
}

func (r *fakeMessageRepo) ListMessagesGroupedBySource(context.Context, time.Time, time.Time) (map[string][]domain.Message, error) {
	return nil, nil
}

type fakeSummarizer struct {
	digest   string
	err      error
	snippets []string
}

func (s *fakeSummarizer) GenerateDigest(_ context.Context, snippets []string, _ int) (string, error) {
	s.snippets = snippets
	return s.digest, s.err
}

func (s *fakeSummarizer) HealthCheck(context.Context) error { return nil }

func TestForChat(t *testing.T) {
	sources := &fakeSourceRepo{source: domain.Source{ID: 3, Identifier: "@workchat", Kind: domain.KindChat}}
	messages := &fakeMessageRepo{msgs: []domain.Message{
		{Text: "обсудили релиз", SenderName: "Анна"},
		{Text: "   "},
		{Text: "и задеплоили"},
	}}
	summarizer := &fakeSummarizer{digest: "🔹 Релиз"}
	svc := NewService(sources, messages, summarizer, 7, 200, zerolog.Nop())

	got, err := svc.ForChat(context.Background(), "@workchat", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != "🔹 Релиз" {
		t.Fatalf("неожиданная повестка: %q", got)
	}
	want := []string{"[Анна] обсудили релиз", "и задеплоили"}
	if len(summarizer.snippets) != len(want) {
		t.Fatalf("неожиданные сниппеты: %#v", summarizer.snippets)
	}
	for i := range want {
		if summarizer.snippets[i] != want[i] {
			t.Fatalf("сниппет %d: ожидали %q, получили %q", i, want[i], summarizer.snippets[i])
		}
	}
}

func TestForChatEmptyWindow(t *testing.T) {
	svc := NewService(
		&fakeSourceRepo{source: domain.Source{ID: 1}},
		&fakeMessageRepo{},
		&fakeSummarizer{},
		7, 200, zerolog.Nop(),
	)
	got, err := svc.ForChat(context.Background(), "@workchat", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("пустое окно не должно быть ошибкой: %v", err)
	}
	if got != "" {
		t.Fatalf("ожидали пустую повестку, получили %q", got)
	}
}

func TestForChatUnknownSource(t *testing.T) {
	svc := NewService(
		&fakeSourceRepo{err: domain.ErrSourceNotFound},
		&fakeMessageRepo{},
		&fakeSummarizer{},
		7, 200, zerolog.Nop(),
	)
	if _, err := svc.ForChat(context.Background(), "@ghost", time.Now().Add(-time.Hour), time.Now()); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Fatalf("ожидали ErrSourceNotFound, получили %v", err)
	}
}

func TestForChatSummarizerFailure(t *testing.T) {
	svc := NewService(
		&fakeSourceRepo{source: domain.Source{ID: 1}},
		&fakeMessageRepo{msgs: []domain.Message{{Text: "текст"}}},
		&fakeSummarizer{err: errors.New("bothub: неожиданный статус 502")},
		7, 200, zerolog.Nop(),
	)
	if _, err := svc.ForChat(context.Background(), "@workchat", time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("ожидали ошибку суммаризатора")
	}
}

func TestDownsample(t *testing.T) {
	snippets := make([]string, 450)
	for i := range snippets {
		snippets[i] = fmt.Sprintf("сообщение %03d", i)
	}

	sampled := Downsample(snippets, 200)
	if len(sampled) > 200 {
		t.Fatalf("выборка превышает лимит: %d", len(sampled))
	}
	if sampled[0] != snippets[0] {
		t.Fatal("первый элемент должен сохраняться")
	}
	prev := -1
	index := make(map[string]int, len(snippets))
	for i, s := range snippets {
		index[s] = i
	}
	for _, s := range sampled {
		pos, ok := index[s]
		if !ok {
			t.Fatalf("элемент %q не из исходного списка", s)
		}
		if pos <= prev {
			t.Fatal("выборка должна сохранять исходный порядок")
		}
		prev = pos
	}
}

func TestDownsampleUnderLimit(t *testing.T) {
	snippets := []string{"а", "б", "в"}
	sampled := Downsample(snippets, 200)
	if len(sampled) != 3 {
		t.Fatalf("короткий список не должен прореживаться: %d", len(sampled))
	}
}

func TestDownsampleJustOverLimit(t *testing.T) {
	snippets := make([]string, 201)
	for i := range snippets {
		snippets[i] = strings.Repeat("а", i+1)
	}
	sampled := Downsample(snippets, 200)
	if len(sampled) == 0 || len(sampled) > 200 {
		t.Fatalf("шаг должен быть не меньше 1 и не давать больше лимита: %d", len(sampled))
	}
}
