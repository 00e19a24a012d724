// Package watch runs the market-watch event loop. One goroutine owns all
// registry writes: feed ticks, watchlist mutations, category switches and
// config changes are serialised through it, so the per-slice ordering
// guarantees hold without further locking.
package watch

import (
	"context"
	"log"
	"strings"

	"marketwatchv1/internal/marketdata"
	"marketwatchv1/internal/marketdata/feed"
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/registry"
	"marketwatchv1/internal/watchlist"
)

// Snapshot is one published view of the active category: the current
// slice with the transient name filter already applied.
type Snapshot struct {
	Category    model.Category
	Instruments []model.Instrument
}

// ActivatedSymbol is emitted when the user picks a symbol for order
// entry. The full quote rides along so the order surface needs no
// second registry read.
type ActivatedSymbol struct {
	Token      string
	Name       string
	Category   model.Category
	LotSize    float64
	Instrument model.Instrument
}

// SearchResults is one delivered (non-stale) search answer.
type SearchResults struct {
	Query   string
	Results []model.SearchResult
}

type cmdKind int

const (
	cmdSwitch cmdKind = iota
	cmdAdd
	cmdRemove
	cmdSearch
	cmdFilter
	cmdActivate
	cmdRate
)

type command struct {
	kind  cmdKind
	cat   model.Category
	res   model.SearchResult
	token string
	query string
}

type searchDelivery struct {
	query   string
	results []model.SearchResult
}

// Config holds Service configuration.
type Config struct {
	// Initial active category. Falls back to the first enabled one.
	Initial model.Category

	// Enabled lists the categories the user may switch to.
	Enabled []model.Category
}

// Service is the event loop. Construct with New, then Run in its own
// goroutine; interact through the command methods and output channels.
type Service struct {
	reg  *registry.Registry
	norm *marketdata.Normalizer
	gw   *watchlist.Gateway

	// subscribe pushes the active flat-feed token list to the ingest.
	// Nil when no flat feed is connected.
	subscribe func(tokens []string)

	cmdCh       chan command
	searchResCh chan searchDelivery

	active  model.Category
	enabled map[model.Category]bool
	filter  string

	snapshots chan Snapshot
	activated chan ActivatedSymbol
	searchOut chan SearchResults
}

// New creates a Service. subscribe may be nil.
func New(reg *registry.Registry, norm *marketdata.Normalizer, gw *watchlist.Gateway, cfg Config, subscribe func([]string)) *Service {
	enabled := make(map[model.Category]bool, len(cfg.Enabled))
	for _, c := range cfg.Enabled {
		enabled[c] = true
	}
	active := cfg.Initial
	if !enabled[active] {
		active = firstEnabled(enabled)
	}

	return &Service{
		reg:         reg,
		norm:        norm,
		gw:          gw,
		subscribe:   subscribe,
		cmdCh:       make(chan command, 64),
		searchResCh: make(chan searchDelivery, 8),
		active:      active,
		enabled:     enabled,
		snapshots:   make(chan Snapshot, 8),
		activated:   make(chan ActivatedSymbol, 8),
		searchOut:   make(chan SearchResults, 8),
	}
}

func firstEnabled(enabled map[model.Category]bool) model.Category {
	for _, c := range model.AllCategories {
		if enabled[c] {
			return c
		}
	}
	return model.CategoryMCX
}

// Snapshots delivers a view after every effective change. Slow consumers
// lose intermediate snapshots, never the latest.
func (s *Service) Snapshots() <-chan Snapshot { return s.snapshots }

// Activated delivers symbol-activation events.
func (s *Service) Activated() <-chan ActivatedSymbol { return s.activated }

// SearchOut delivers debounced, non-stale search results.
func (s *Service) SearchOut() <-chan SearchResults { return s.searchOut }

// Active returns the category the loop considers active. Only meaningful
// between commands; the loop is the authority.
func (s *Service) Active() model.Category { return s.active }

// SwitchCategory changes the active tab.
func (s *Service) SwitchCategory(cat model.Category) {
	s.send(command{kind: cmdSwitch, cat: cat})
}

// Add requests persisting a searched symbol into the active category.
func (s *Service) Add(res model.SearchResult) {
	s.send(command{kind: cmdAdd, res: res})
}

// Remove requests dropping a token from the active category.
func (s *Service) Remove(token string) {
	s.send(command{kind: cmdRemove, token: token})
}

// Search requests a debounced symbol search in the active category.
func (s *Service) Search(query string) {
	s.send(command{kind: cmdSearch, query: query})
}

// SetFilter sets the transient name filter over the active slice.
func (s *Service) SetFilter(query string) {
	s.send(command{kind: cmdFilter, query: query})
}

// Activate marks a symbol as picked for order entry.
func (s *Service) Activate(token string) {
	s.send(command{kind: cmdActivate, token: token})
}

// RateUpdated tells the loop the USD→INR rate changed, so the current
// view is republished with fresh conversions downstream.
func (s *Service) RateUpdated() {
	s.send(command{kind: cmdRate})
}

func (s *Service) send(c command) {
	select {
	case s.cmdCh <- c:
	default:
		log.Println("[watch] command queue full, dropping")
	}
}

// Run loads the active category and processes events until ctx is
// cancelled. feedCh carries decoded ticks from both ingest clients;
// cfgCh (optional, may be nil) pushes replacement enabled-category sets.
func (s *Service) Run(ctx context.Context, feedCh <-chan feed.Event, cfgCh <-chan []model.Category) {
	// Load errors degrade to an empty slice inside the gateway; the loop
	// starts regardless.
	s.gw.Load(ctx, s.active)
	s.resubscribe()
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-feedCh:
			s.handleFeed(ev)

		case cmd := <-s.cmdCh:
			s.handleCommand(ctx, cmd)

		case d := <-s.searchResCh:
			s.emitSearch(d)

		case cats, ok := <-cfgCh:
			if !ok {
				cfgCh = nil
				continue
			}
			s.handleConfig(ctx, cats)
		}
	}
}

func (s *Service) handleFeed(ev feed.Event) {
	switch {
	case ev.Flat != nil:
		if s.norm.ApplyFlatTick(*ev.Flat) {
			s.publish()
		}
	case ev.Book != nil:
		if s.norm.ApplyBookTick(*ev.Book, s.active) {
			s.publish()
		}
	}
}

func (s *Service) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdSwitch:
		if !s.enabled[cmd.cat] || cmd.cat == s.active {
			return
		}
		s.active = cmd.cat
		// Transient search/filter state belongs to the old tab.
		s.filter = ""
		s.gw.Search(ctx, s.active, "", func(string, []model.SearchResult) {})
		s.gw.Load(ctx, s.active)
		s.resubscribe()
		s.publish()

	case cmdAdd:
		if err := s.gw.Add(ctx, s.active, cmd.res); err == nil {
			s.resubscribe()
		}
		s.publish()

	case cmdRemove:
		s.gw.Remove(ctx, s.active, cmd.token)
		s.resubscribe()
		s.publish()

	case cmdSearch:
		s.gw.Search(ctx, s.active, cmd.query, func(q string, res []model.SearchResult) {
			select {
			case s.searchResCh <- searchDelivery{query: q, results: res}:
			default:
			}
		})

	case cmdFilter:
		s.filter = cmd.query
		s.publish()

	case cmdActivate:
		for _, ins := range s.reg.Get(s.active) {
			if ins.Token == cmd.token {
				ev := ActivatedSymbol{
					Token:      ins.Token,
					Name:       ins.Name,
					Category:   s.active,
					LotSize:    ins.LotSize,
					Instrument: ins,
				}
				select {
				case s.activated <- ev:
				default:
				}
				return
			}
		}

	case cmdRate:
		s.publish()
	}
}

func (s *Service) handleConfig(ctx context.Context, cats []model.Category) {
	enabled := make(map[model.Category]bool, len(cats))
	for _, c := range cats {
		enabled[c] = true
	}
	s.enabled = enabled
	log.Printf("[watch] categories now %v", cats)

	if !s.enabled[s.active] {
		s.active = firstEnabled(s.enabled)
		s.filter = ""
		s.gw.Load(ctx, s.active)
		s.resubscribe()
		s.publish()
	}
}

// resubscribe pushes the active category's token list to the flat-feed
// ingest. Book-feed categories stream unfiltered, so the subscription is
// cleared instead.
func (s *Service) resubscribe() {
	if s.subscribe == nil {
		return
	}
	if s.active.UsesBookFeed() {
		s.subscribe(nil)
		return
	}
	set := s.reg.SelectedTokens(s.active)
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	s.subscribe(tokens)
}

func (s *Service) publish() {
	ins := s.reg.Get(s.active)
	if s.filter != "" {
		q := strings.ToUpper(s.filter)
		kept := ins[:0]
		for _, i := range ins {
			if strings.Contains(strings.ToUpper(i.Name), q) {
				kept = append(kept, i)
			}
		}
		ins = kept
	}

	snap := Snapshot{Category: s.active, Instruments: ins}
	for {
		select {
		case s.snapshots <- snap:
			return
		default:
			// Drop the oldest queued snapshot and retry.
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}

func (s *Service) emitSearch(d searchDelivery) {
	select {
	case s.searchOut <- SearchResults{Query: d.query, Results: d.results}:
	default:
	}
}
