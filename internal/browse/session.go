// Package browse implements the category/search state machine that sits
// between user actions and the category cache.
package browse

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"calbrowse/internal/cache"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
	"calbrowse/internal/popular"
)

// Action is a discrete user command. The UI layer turns raw input events
// into one of Select, SetSubMode or Search.
type Action interface {
	isAction()
}

// Select chooses a category; an empty Tag clears the selection.
type Select struct{ Tag string }

// SetSubMode switches the conferences sub-view.
type SetSubMode struct{ Mode model.SubMode }

// Search sets the global search query; an empty Query ends the search.
type Search struct{ Query string }

func (Select) isAction()     {}
func (SetSubMode) isAction() {}
func (Search) isAction()     {}

// Observer receives every published view. It is called with the session
// lock held and must not call back into the session.
type Observer func(View)

// Option configures a Session.
type Option func(*Session)

// WithObserver registers the render target.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// Session is one browsing session: a selection, the category cache it owns,
// and the last published view.
type Session struct {
	categories *model.Categories
	matcher    *popular.Matcher
	cache      *cache.Cache
	observer   Observer

	mu  sync.Mutex
	sel model.Selection
	// searches counts load-all operations still in flight.
	searches int
	view     View
	links    []popular.QuickLink
}

// NewSession creates a session with an empty cache backed by fetcher.
func NewSession(categories *model.Categories, fetcher cache.Fetcher, matcher *popular.Matcher, opts ...Option) *Session {
	s := &Session{
		categories: categories,
		matcher:    matcher,
		sel:        model.Selection{SubMode: model.SubModeAll},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New(categories, fetcher, cache.WithLoadHook(s.onLoaded))

	s.mu.Lock()
	s.renderLocked()
	s.mu.Unlock()
	return s
}

// Handle dispatches an action. The returned channel is closed once every
// load the action started has been applied.
func (s *Session) Handle(ctx context.Context, a Action) <-chan struct{} {
	switch a := a.(type) {
	case Select:
		return s.SelectCategory(ctx, a.Tag)
	case SetSubMode:
		s.SetConferenceSubMode(a.Mode)
	case Search:
		return s.SetSearchQuery(ctx, a.Query)
	default:
		appLog.Debug("browse: ignoring unknown action")
	}
	return closed()
}

// SelectCategory switches the active category, resetting sub-mode and
// query, and starts loading it. An empty tag returns to the idle state.
func (s *Session) SelectCategory(ctx context.Context, tag string) <-chan struct{} {
	tag = strings.TrimSpace(tag)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sel = model.Selection{ActiveTag: tag, SubMode: model.SubModeAll}
	if tag == "" {
		s.renderLocked()
		return closed()
	}

	loaded := s.cache.Start(ctx, tag)
	s.renderLocked()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-loaded
		s.complete(tag)
	}()
	return done
}

// SetConferenceSubMode changes the conferences sub-view. It is a no-op for
// unknown modes, when conferences is not the active category, or while a
// search query is set.
func (s *Session) SetConferenceSubMode(mode model.SubMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !mode.Valid() || s.sel.ActiveTag != model.ConferencesTag || s.sel.Query != "" {
		appLog.Debug("browse: sub-mode change ignored", "mode", string(mode), "active", s.sel.ActiveTag)
		return
	}
	s.sel.SubMode = mode
	s.renderLocked()
}

// SetSearchQuery sets the global query. A non-empty query loads every
// category, since search spans all of them.
func (s *Session) SetSearchQuery(ctx context.Context, q string) <-chan struct{} {
	q = strings.TrimSpace(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sel.Query = q
	if q == "" {
		s.renderLocked()
		return closed()
	}

	tags := s.categories.Tags()
	waits := make([]<-chan struct{}, len(tags))
	for i, tag := range tags {
		waits[i] = s.cache.Start(ctx, tag)
	}
	s.searches++
	s.renderLocked()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		for i, tag := range tags {
			g.Go(func() error {
				<-waits[i]
				s.complete(tag)
				return nil
			})
		}
		_ = g.Wait()

		s.mu.Lock()
		s.searches--
		s.mu.Unlock()
	}()
	return done
}

// VisibleState returns the last published view.
func (s *Session) VisibleState() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Selection returns the current selection.
func (s *Session) Selection() model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// PopularLinks returns the quick links built when conferences loaded.
func (s *Session) PopularLinks() []popular.QuickLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]popular.QuickLink(nil), s.links...)
}

// Cache exposes the session's cache for read-only use.
func (s *Session) Cache() Reader {
	return s.cache
}

// complete applies a finished load, unless it has gone stale: only the
// active category or a running search may re-render.
func (s *Session) complete(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tag != s.sel.ActiveTag && s.searches == 0 {
		appLog.Debug("browse: discarding stale load", "tag", tag, "active", s.sel.ActiveTag)
		return
	}
	s.renderLocked()
}

func (s *Session) onLoaded(cat model.Category, items []model.Record) {
	if cat.Tag != model.ConferencesTag {
		return
	}
	links := s.matcher.BuildIndex(items)

	s.mu.Lock()
	s.links = links
	s.mu.Unlock()
}

func (s *Session) renderLocked() {
	s.view = Derive(s.cache, s.sel, s.matcher, s.categories)
	if s.observer != nil {
		s.observer(s.view)
	}
}

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
