package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/repository"
)

// fakeProfileRepo is an in-memory ProfileRepository.
type fakeProfileRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	order    []string
	upserts  []model.UpsertAccountParams
	comments map[string][]time.Time
	now      func() time.Time
}

func newFakeProfileRepo(accounts ...model.Account) *fakeProfileRepo {
	r := &fakeProfileRepo{
		accounts: make(map[string]*model.Account),
		comments: make(map[string][]time.Time),
		now:      time.Now,
	}
	for i := range accounts {
		acc := accounts[i]
		r.accounts[acc.Username] = &acc
		r.order = append(r.order, acc.Username)
	}
	return r
}

func (r *fakeProfileRepo) Upsert(ctx context.Context, params model.UpsertAccountParams) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, params)

	acc, ok := r.accounts[params.Username]
	if !ok {
		acc = &model.Account{ID: int64(len(r.order) + 1), Username: params.Username}
		r.accounts[params.Username] = acc
		r.order = append(r.order, params.Username)
	}
	acc.Password = params.Password
	if params.SharedSecret != "" {
		acc.SharedSecret = params.SharedSecret
	}
	if params.SteamID != "" {
		acc.SteamID = params.SteamID
	}
	acc.Cookies = params.Cookies
	copied := *acc
	return &copied, nil
}

func (r *fakeProfileRepo) FindAll(ctx context.Context) ([]model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Account, 0, len(r.order))
	for _, name := range r.order {
		if acc, ok := r.accounts[name]; ok {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[username]
	if !ok {
		return nil, nil
	}
	copied := *acc
	return &copied, nil
}

func (r *fakeProfileRepo) FindBySteamID(ctx context.Context, steamID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.SteamID == steamID {
			copied := *acc
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeProfileRepo) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[username]; !ok {
		return 0, nil
	}
	delete(r.accounts, username)
	return 1, nil
}

func (r *fakeProfileRepo) RecordComment(ctx context.Context, steamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.comments[steamID] = append(r.comments[steamID], now)
	for _, acc := range r.accounts {
		if acc.SteamID == steamID {
			acc.LastCommentAt = &now
		}
	}
	return nil
}

func (r *fakeProfileRepo) CountCommentsSince(ctx context.Context, steamID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.comments[steamID] {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeProfileRepo) WithTx(tx *sqlx.Tx) repository.ProfileRepository {
	return r
}

func (r *fakeProfileRepo) commentCount(steamID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.comments[steamID])
}

// loginStep is one scripted answer of fakeSession.Login.
type loginStep struct {
	state *model.SessionState
	err   error
}

func stepStatus(status model.SessionStatus) loginStep {
	return loginStep{state: &model.SessionState{Status: status}}
}

func stepLoggedIn() loginStep {
	return loginStep{state: &model.SessionState{Status: model.SessionLoggedIn, Cookies: `["sessionid=abc"]`}}
}

func stepErr(err error) loginStep {
	return loginStep{err: err}
}

// fakeSession replays scripted login outcomes and records comment posts.
type fakeSession struct {
	steps      []loginStep
	steamID    string
	logins     []model.LoginInput
	postErr    func(n int) error
	posts      []string
	loggedIn   bool
	resolvedID string
}

func newFakeSession(steamID string, steps ...loginStep) *fakeSession {
	return &fakeSession{steps: steps, steamID: steamID}
}

func (f *fakeSession) Login(ctx context.Context, input model.LoginInput) (*model.SessionState, error) {
	f.logins = append(f.logins, input)
	if len(f.steps) == 0 {
		return nil, fmt.Errorf("unexpected login")
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	state := *step.state
	if state.Status == model.SessionLoggedIn {
		f.loggedIn = true
		f.resolvedID = f.steamID
	}
	return &state, nil
}

func (f *fakeSession) PostComment(ctx context.Context, targetSteamID, text string) error {
	f.posts = append(f.posts, targetSteamID)
	if f.postErr != nil {
		return f.postErr(len(f.posts))
	}
	return nil
}

func (f *fakeSession) IsLoggedIn(ctx context.Context) (bool, error) {
	return f.loggedIn, nil
}

func (f *fakeSession) SteamID() string {
	return f.resolvedID
}

// mockReputation is a testify mock of ReputationClient.
type mockReputation struct {
	mock.Mock
}

func (m *mockReputation) AddSteamProfile(ctx context.Context, steamID string) error {
	args := m.Called(ctx, steamID)
	return args.Error(0)
}

func (m *mockReputation) GetSteamProfiles(ctx context.Context) ([]model.SteamProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SteamProfile), args.Error(1)
}

func (m *mockReputation) GetTasks(ctx context.Context, remoteProfileID string) ([]model.Task, error) {
	args := m.Called(ctx, remoteProfileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *mockReputation) CompleteTask(ctx context.Context, taskID, commentID, authorProfileID string) (*model.CompleteTaskResult, error) {
	args := m.Called(ctx, taskID, commentID, authorProfileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CompleteTaskResult), args.Error(1)
}

// sleepRecorder is a Sleeper that returns immediately.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

// stubPrompter answers prompts from a queue.
type stubPrompter struct {
	answers  []string
	requests []PromptRequest
}

func (p *stubPrompter) Prompt(ctx context.Context, req PromptRequest) (string, error) {
	p.requests = append(p.requests, req)
	if len(p.answers) == 0 {
		return "", fmt.Errorf("no answer queued")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func makeTasks(prefix string, n int) []model.Task {
	tasks := make([]model.Task, n)
	for i := range tasks {
		tasks[i] = model.Task{
			TaskID:                 model.FlexID(fmt.Sprintf("%s%d", prefix, i+1)),
			RequiredCommentID:      model.FlexID(fmt.Sprintf("c%s%d", prefix, i+1)),
			RequiredCommentText:    "+rep great player",
			TargetSteamProfileID:   model.FlexID(fmt.Sprintf("7656119800000%04d", i+1)),
			TargetSteamProfileName: fmt.Sprintf("target-%d", i+1),
		}
	}
	return tasks
}
