package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
	"github.com/ManuelReschke/ContestHub/internal/pkg/settlement"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

var (
	alice   = usercontext.UserContext{Email: "alice@example.com", Name: "Alice", Role: models.ROLE_USER, IsLoggedIn: true}
	bob     = usercontext.UserContext{Email: "bob@example.com", Name: "Bob", Role: models.ROLE_USER, IsLoggedIn: true}
	creator = usercontext.UserContext{Email: "carol@example.com", Name: "Carol", Role: models.ROLE_CREATOR, IsLoggedIn: true}
	admin   = usercontext.UserContext{Email: "root@example.com", Name: "Root", Role: models.ROLE_ADMIN, IsLoggedIn: true, IsAdmin: true}
	anon    = usercontext.UserContext{}
)

// as installs caller as the verified identity of every request.
func as(caller usercontext.UserContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if caller.IsLoggedIn {
			usercontext.SetUserContext(c, caller)
		}
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 && raw[0] == '[' {
		var list []interface{}
		require.NoError(t, json.Unmarshal(raw, &list))
		out["items"] = list
	}
	return resp, out
}

type memUsers struct {
	mu    sync.Mutex
	next  uint
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*models.User{}}
}

func (m *memUsers) CreateIfNotExists(user *models.User) (bool, *models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.Email]; ok {
		cp := *existing
		return false, &cp, nil
	}
	m.next++
	user.ID = m.next
	cp := *user
	m.users[user.Email] = &cp
	return true, user, nil
}

func (m *memUsers) GetByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateRole(email, role string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (m *memUsers) List(offset, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, offset, limit), nil
}

func (m *memUsers) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memContests struct {
	mu       sync.Mutex
	next     uint
	contests map[uint]*models.Contest
}

func newMemContests(seed ...models.Contest) *memContests {
	m := &memContests{contests: map[uint]*models.Contest{}}
	for i := range seed {
		c := seed[i]
		if c.ID == 0 {
			m.next++
			c.ID = m.next
		} else if c.ID > m.next {
			m.next = c.ID
		}
		m.contests[c.ID] = &c
	}
	return m
}

func (m *memContests) sorted(keep func(*models.Contest) bool) []models.Contest {
	var out []models.Contest
	for _, c := range m.contests {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memContests) Create(contest *models.Contest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	contest.ID = m.next
	cp := *contest
	m.contests[contest.ID] = &cp
	return nil
}

func (m *memContests) GetByID(id uint) (*models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memContests) ListApproved(filter repository.ContestFilter) ([]models.Contest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(c *models.Contest) bool {
		if !c.IsApproved() {
			return false
		}
		if filter.Type != "" && c.ContestType != filter.Type {
			return false
		}
		return filter.Search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search))
	})
	return paginate(all, filter.Offset, filter.Limit), int64(len(all)), nil
}

func (m *memContests) ListTopApproved(limit int) ([]models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(c *models.Contest) bool { return c.IsApproved() })
	sort.SliceStable(all, func(i, j int) bool { return all[i].ParticipantsCount > all[j].ParticipantsCount })
	return paginate(all, 0, limit), nil
}

func (m *memContests) ListByCreator(email string) ([]models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(c *models.Contest) bool { return c.CreatorEmail == email }), nil
}

func (m *memContests) List(offset, limit int) ([]models.Contest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(*models.Contest) bool { return true })
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *memContests) Update(contest *models.Contest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contests[contest.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *contest
	m.contests[contest.ID] = &cp
	return nil
}

func (m *memContests) UpdateStatus(id uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (m *memContests) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contests[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.contests, id)
	return nil
}

type memTasks struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (m *memTasks) Create(task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ContestID == task.ContestID && t.UserEmail == task.UserEmail {
			return repository.ErrDuplicate
		}
	}
	task.ID = uint(len(m.tasks) + 1)
	m.tasks = append(m.tasks, *task)
	return nil
}

func (m *memTasks) ListByContest(contestID uint) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.ContestID == contestID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) GetByContestAndUser(contestID uint, email string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ContestID == contestID && t.UserEmail == email {
			cp := t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type memWins struct {
	mu   sync.Mutex
	wins []models.Win
}

func (m *memWins) Create(win *models.Win) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wins {
		if w.ContestID == win.ContestID {
			return repository.ErrDuplicate
		}
	}
	win.ID = uint(len(m.wins) + 1)
	m.wins = append(m.wins, *win)
	return nil
}

func (m *memWins) GetByContest(contestID uint) (*models.Win, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wins {
		if w.ContestID == contestID {
			cp := w
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memWins) ListByWinner(email string) ([]models.Win, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Win
	for _, w := range m.wins {
		if w.WinnerEmail == email {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memWins) Leaderboard(limit int) ([]repository.LeaderboardRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byEmail := map[string]*repository.LeaderboardRow{}
	var order []string
	for _, w := range m.wins {
		row, ok := byEmail[w.WinnerEmail]
		if !ok {
			row = &repository.LeaderboardRow{WinnerEmail: w.WinnerEmail, WinnerName: w.WinnerName}
			byEmail[w.WinnerEmail] = row
			order = append(order, w.WinnerEmail)
		}
		row.Wins++
		row.TotalPrize = row.TotalPrize.Add(w.PrizeMoney)
	}
	out := make([]repository.LeaderboardRow, 0, len(order))
	for _, e := range order {
		out = append(out, *byEmail[e])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Wins > out[j].Wins })
	return paginate(out, 0, limit), nil
}

var errCacheMiss = errors.New("cache miss")

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) GetJSON(key string, dst interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return errCacheMiss
	}
	return json.Unmarshal(raw, dst)
}

func (s *memStore) SetJSON(key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = raw
	s.sets++
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type stubPayments struct {
	paid map[uint]map[string]bool
	err  error
}

func (s *stubPayments) HasPaid(_ context.Context, contestID uint, email string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.paid[contestID][email], nil
}

type stubProcessor struct {
	requests []payment.CheckoutRequest
	err      error
}

func (p *stubProcessor) CreateSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &payment.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example.com/cs_test_1"}, nil
}

func (p *stubProcessor) RetrieveSession(context.Context, string) (*payment.Session, error) {
	return nil, payment.ErrSessionNotFound
}

type stubSettler struct {
	confirm func(sessionRef string) (*settlement.Confirmation, error)
	entries []models.LedgerEntry
}

func (s *stubSettler) ConfirmPayment(_ context.Context, sessionRef string) (*settlement.Confirmation, error) {
	return s.confirm(sessionRef)
}

func (s *stubSettler) FindByTrackingToken(_ context.Context, token string) (*models.LedgerEntry, error) {
	for i := range s.entries {
		if s.entries[i].TrackingToken == token {
			return &s.entries[i], nil
		}
	}
	return nil, apperror.New(apperror.KindNotFound, "payment_not_found", "payment not found")
}

func (s *stubSettler) PaymentsByPayer(_ context.Context, email string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.PayerEmail == email {
			out = append(out, e)
		}
	}
	return out, nil
}
