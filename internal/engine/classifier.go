// internal/engine/classifier.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/browser"
)

// PageState is the classified state of the portal after a search. The set is
// closed: StateNotFound, StatePopup, StateSingleResult and StateUnknown.
type PageState interface {
	Name() string
	pageState()
}

// StateNotFound means the portal showed its "no customer" banner.
type StateNotFound struct{ Message string }

// StatePopup means a modal dialog is blocking the page.
type StatePopup struct{ Popup Popup }

// StateSingleResult means the portal landed on one vehicle's page.
type StateSingleResult struct{ URL string }

// StateUnknown means none of the known states matched.
type StateUnknown struct{ URL string }

func (StateNotFound) Name() string     { return "not_found" }
func (s StatePopup) Name() string      { return "popup_" + s.Popup.Kind() }
func (StateSingleResult) Name() string { return "single_result" }
func (StateUnknown) Name() string      { return "unknown" }

func (StateNotFound) pageState()     {}
func (StatePopup) pageState()        {}
func (StateSingleResult) pageState() {}
func (StateUnknown) pageState()      {}

const (
	notFoundPause     = 500 * time.Millisecond
	popupProbe        = 300 * time.Millisecond
	popupPause        = 100 * time.Millisecond
	minRoutingWait    = 3 * time.Second
	markerAttachWait  = time.Second
	defaultDrainRound = 3
)

// Classify inspects the page once. Checks run in fixed precedence, so a
// not-found banner wins over a stray modal and a modal wins over the URL.
func (s *Session) Classify(ctx context.Context) (PageState, error) {
	return s.classifyTracked(ctx, false)
}

// classifyTracked classifies the page. With skipRevision set, a visible
// revision alert no longer counts as a popup and the URL check decides.
func (s *Session) classifyTracked(ctx context.Context, skipRevision bool) (PageState, error) {
	var state PageState
	err := s.ex.Track("classify", func() error {
		var err error
		state, err = s.classify(ctx, skipRevision)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordPageState(state)
	s.logger.Info("Classified page.", zap.String("state", state.Name()))
	return state, nil
}

func (s *Session) classify(ctx context.Context, skipRevision bool) (PageState, error) {
	if st, ok, err := s.checkNotFound(ctx); err != nil || ok {
		return st, err
	}
	if st, ok, err := s.checkPopup(ctx, skipRevision); err != nil || ok {
		return st, err
	}
	url, ok, err := s.checkSingleResult(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return StateSingleResult{URL: url}, nil
	}
	return StateUnknown{URL: url}, nil
}

// probe treats a timeout as "no" and returns any other error.
func probe(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, browser.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Session) checkNotFound(ctx context.Context) (PageState, bool, error) {
	if err := s.Pause(ctx, notFoundPause); err != nil {
		return nil, false, err
	}
	banner := browser.Query(s.sel.NotFoundBanner)
	ok, err := probe(s.driver.WaitFor(ctx, banner, browser.StateVisible, s.Timeouts().Quick))
	if err != nil || !ok {
		return nil, false, err
	}
	msg, err := s.driver.TextContent(ctx, banner)
	if err != nil {
		s.logger.Debug("Could not read not-found banner text.", zap.Error(err))
	}
	return StateNotFound{Message: strings.TrimSpace(msg)}, true, nil
}

func (s *Session) checkPopup(ctx context.Context, skipRevision bool) (PageState, bool, error) {
	if err := s.Pause(ctx, popupPause); err != nil {
		return nil, false, err
	}
	title := browser.Query(s.sel.PopupTitle)
	ok, err := probe(s.driver.WaitFor(ctx, title, browser.StateVisible, popupProbe))
	if err != nil {
		return nil, false, err
	}
	if ok {
		text, err := s.driver.TextContent(ctx, title)
		switch {
		case err == nil:
			return StatePopup{Popup: popupForTitle(text)}, true, nil
		case !errors.Is(err, browser.ErrNotFound):
			return nil, false, err
		}
		// Closed between the probe and the read.
	}
	if skipRevision {
		return nil, false, nil
	}

	visible, err := s.driver.IsVisible(ctx, browser.Query(s.sel.RevisionAlert))
	if err != nil {
		return nil, false, err
	}
	if visible {
		return StatePopup{Popup: RevisionAlert{}}, true, nil
	}
	return nil, false, nil
}

func (s *Session) checkSingleResult(ctx context.Context) (string, bool, error) {
	want := s.cfg.Portal().SingleResultURL()
	match := func(u string) bool { return strings.HasPrefix(u, want) }

	url, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return "", false, err
	}
	if !match(url) {
		wait := s.Timeouts().Medium / 2
		if wait < minRoutingWait {
			wait = minRoutingWait
		}
		ok, err := probe(s.driver.WaitForURL(ctx, match, wait))
		if err != nil {
			return url, false, err
		}
		if !ok {
			return url, false, nil
		}
		if url, err = s.driver.CurrentURL(ctx); err != nil {
			return "", false, err
		}
	}

	found, err := s.findLastServiceMarker(ctx)
	return url, found, err
}

// Marker strategies, tried in order until one finds the block.
const (
	markerBySelector = "selector"
	markerExactText  = "exact_text"
	markerFuzzyText  = "fuzzy_text"
	markerPageScan   = "page_scan"
)

// normalizeJS folds case and strips accents in page JS.
const normalizeJS = `const norm = (s) => (s || "").normalize("NFD").replace(/[\u0300-\u036f]/g, "").replace(/\s+/g, " ").trim().toLowerCase();`

// markerScript returns the page script for a text strategy. The leading
// comment tags the strategy so scripted drivers can answer it.
func markerScript(strategy, text string) string {
	q := strconv.Quote(text)
	switch strategy {
	case markerExactText:
		return fmt.Sprintf(`/* %s */ (() => Array.from(document.querySelectorAll("div, span, p, h1, h2, h3, h4, h5, h6"))
			.some((e) => (e.textContent || "").trim() === %s))()`, strategy, q)
	case markerFuzzyText:
		return fmt.Sprintf(`/* %s */ (() => { %s const want = norm(%s);
			return Array.from(document.querySelectorAll("div, span, p, h1, h2, h3, h4, h5, h6"))
				.some((e) => e.childElementCount === 0 && norm(e.textContent).includes(want)); })()`, strategy, normalizeJS, q)
	default:
		return fmt.Sprintf(`/* %s */ (() => { %s return norm(document.body ? document.body.innerText : "").includes(norm(%s)); })()`,
			strategy, normalizeJS, q)
	}
}

func (s *Session) findLastServiceMarker(ctx context.Context) (bool, error) {
	if s.sel.LastService != "" {
		ok, err := probe(s.driver.WaitFor(ctx, browser.Query(s.sel.LastService), browser.StateAttached, markerAttachWait))
		if err != nil {
			return false, err
		}
		if ok {
			s.logger.Debug("Found last-service marker.", zap.String("strategy", markerBySelector))
			return true, nil
		}
	}
	for _, strategy := range []string{markerExactText, markerFuzzyText, markerPageScan} {
		var found bool
		if err := s.driver.Evaluate(ctx, markerScript(strategy, s.sel.LastServiceText), &found); err != nil {
			if ctx.Err() != nil || errors.Is(err, browser.ErrClosed) {
				return false, err
			}
			s.logger.Debug("Marker strategy failed.", zap.String("strategy", strategy), zap.Error(err))
			continue
		}
		if found {
			s.logger.Debug("Found last-service marker.", zap.String("strategy", strategy))
			return true, nil
		}
	}
	return false, nil
}

// Settle classifies the page and resolves transient popups until a stable
// state is reached. A revision alert that survives every dismissal is
// ignored from then on. Settle never returns a transient popup state: one
// still open after the configured rounds is a PopupHandlingError.
func (s *Session) Settle(ctx context.Context) (PageState, error) {
	rounds := s.cfg.Schedule().PopupDrainRounds
	if rounds <= 0 {
		rounds = defaultDrainRound
	}
	skipRevision := false
	for round := 0; round < rounds; round++ {
		state, err := s.classifyTracked(ctx, skipRevision)
		if err != nil {
			return nil, err
		}
		popup, ok := state.(StatePopup)
		if !ok || !IsTransient(popup.Popup) {
			return state, nil
		}
		s.logger.Info("Resolving transient popup.", zap.String("popup", popup.Popup.Kind()), zap.Int("round", round+1))
		if _, isRevision := popup.Popup.(RevisionAlert); isRevision {
			dismissed, err := s.resolveRevision(ctx)
			if err != nil {
				return nil, err
			}
			skipRevision = !dismissed
			continue
		}
		if err := s.Resolve(ctx, popup.Popup); err != nil {
			return nil, err
		}
	}

	state, err := s.classifyTracked(ctx, true)
	if err != nil {
		return nil, err
	}
	if popup, ok := state.(StatePopup); ok && IsTransient(popup.Popup) {
		return nil, &PopupHandlingError{
			Op:    "settle",
			Title: popup.Popup.Kind(),
			Err:   fmt.Errorf("still open after %d rounds", rounds),
		}
	}
	return state, nil
}
