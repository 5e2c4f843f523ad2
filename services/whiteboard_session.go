// Session is the hub of one whiteboard: it owns the element store, the
// moderation and voting engines, and the set of connected websocket clients.
// Register/Unregister/Broadcast are only consumed by Run, so the client map is
// never touched from any other goroutine. Element events are rendered per
// viewer in Run because visibility depends on who is looking.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/broadcast"
	"whiteboardAPI/internal/metrics"
	"whiteboardAPI/internal/moderation"
	"whiteboardAPI/internal/notification"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
	"whiteboardAPI/internal/voting"
	"whiteboardAPI/internal/whiteboard"
)

// ErrSessionClosed is returned to a client that raced with session shutdown.
var ErrSessionClosed = errors.New("whiteboard session closed")

// Alerter is told about content that was flagged automatically.
type Alerter interface {
	Dispatch(a notification.Alert) bool
}

type ModerationOptions struct {
	Workers       int
	QueueSize     int
	Timeout       time.Duration
	SweepInterval time.Duration
	Classifier    moderation.Classifier
}

// SessionDeps is shared by every session of a manager.
type SessionDeps struct {
	Repo              WhiteboardRepository
	Bus               broadcast.Broadcaster
	Authz             *Authorizer
	Alerts            Alerter
	InstanceID        string
	Log               *zap.Logger
	DefaultModeration policy.Config
	Moderation        ModerationOptions
	VoteThreshold     float64
	Catalog           []voting.FilterSpec
}

// ElementView is an element as one viewer sees it.
type ElementView struct {
	element.Element
	Badge whiteboard.Badge `json:"badge,omitempty"`
}

type elementMessage struct {
	Action  string      `json:"action"`
	Element ElementView `json:"element"`
}

type hiddenMessage struct {
	Action    string `json:"action"`
	ElementID string `json:"elementId"`
}

type boardStateMessage struct {
	Action      string          `json:"action"`
	SessionID   string          `json:"sessionId"`
	IsModerator bool            `json:"isModerator"`
	Moderation  policy.Config   `json:"moderation"`
	Elements    []ElementView   `json:"elements"`
	Filters     voting.Snapshot `json:"filters"`
}

type filtersMessage struct {
	Action  string          `json:"action"`
	Filters voting.Snapshot `json:"filters"`
}

type filterEffectMessage struct {
	Action   string  `json:"action"`
	FilterID string  `json:"filterId,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

type errorMessage struct {
	Action  string `json:"action"`
	Error   string `json:"error"`
	Request string `json:"request,omitempty"`
}

type participantPayload struct {
	ParticipantID string `json:"participantId"`
}

type votePayload struct {
	ParticipantID string `json:"participantId"`
	FilterID      string `json:"filterId,omitempty"`
}

// syncPayload answers a sync_request: the users connected to the answering
// instance and every ballot it knows for the session.
type syncPayload struct {
	Participants []string          `json:"participants"`
	Ballots      map[string]string `json:"ballots"`
}

// outbound is one unit of work for the Run loop.
type outbound struct {
	element *elementEvent
	resync  bool
	client  *Client
	toUser  string
	data    []byte
}

type elementEvent struct {
	action string
	el     element.Element
}

type Session struct {
	ID        string
	HostID    string
	Title     string
	CreatedAt time.Time

	manager *WhiteboardManager
	deps    SessionDeps
	log     *zap.Logger

	store      *whiteboard.Store
	moderation *moderation.Engine
	voting     *voting.Engine

	cfgMu sync.RWMutex
	cfg   policy.Config

	// writeMu orders store writes with their broadcasts, so a verdict is
	// never delivered ahead of the element it belongs to.
	writeMu sync.Mutex

	// presence counts local connections per user; remote holds the other
	// instances each user is connected to. A user stays a voting participant
	// while connected anywhere.
	presenceMu sync.Mutex
	presence   map[string]int
	remote     map[string]map[string]struct{}

	// effects are queued while the voting engine holds its lock and flushed
	// after it returns, because Run reads voting snapshots.
	effectsMu sync.Mutex
	flushMu   sync.Mutex
	effects   []outbound

	clients     map[*Client]bool
	Register    chan *Client
	Unregister  chan *Client
	Broadcast   chan outbound
	TriggerList chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	closing     chan struct{}
	closeOnce   sync.Once
	done        chan struct{}

	stopSweep   context.CancelFunc
	unsubscribe func()
}

func newSession(info SessionInfo, elements []element.Element, m *WhiteboardManager) (*Session, error) {
	deps := m.deps
	log := deps.Log.With(zap.String("session_id", info.ID))

	s := &Session{
		ID:          info.ID,
		HostID:      info.HostID,
		Title:       info.Title,
		CreatedAt:   info.CreatedAt,
		manager:     m,
		deps:        deps,
		log:         log,
		cfg:         info.Moderation.Normalized(),
		presence:    make(map[string]int),
		remote:      make(map[string]map[string]struct{}),
		clients:     make(map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Broadcast:   make(chan outbound, 256),
		TriggerList: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	votes, err := voting.NewEngine(deps.Catalog, deps.VoteThreshold, sessionEffects{s: s}, log)
	if err != nil {
		return nil, fmt.Errorf("voting engine: %w", err)
	}
	s.voting = votes

	s.store = whiteboard.NewStore(info.ID)
	s.store.Load(elements)
	s.moderation = moderation.NewEngine(s.store, log, moderation.Options{
		Workers:    deps.Moderation.Workers,
		QueueSize:  deps.Moderation.QueueSize,
		Timeout:    deps.Moderation.Timeout,
		Classifier: deps.Moderation.Classifier,
		OnDecision: s.onModeration,
	})
	s.store.SetScheduler(s.moderation)

	deps.Authz.SetHost(info.ID, info.HostID)
	s.unsubscribe = deps.Bus.Subscribe(info.ID, s.onRemote)
	// instances already serving the session answer with their participants and ballots
	s.publish(context.Background(), broadcast.EventSyncRequest, struct{}{})

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	if deps.Moderation.SweepInterval > 0 {
		go s.moderation.RunSweeper(sweepCtx, deps.Moderation.SweepInterval, s.Config)
	}

	go s.Run()
	return s, nil
}

func (s *Session) Run() {
	defer close(s.done)

	for {
		select {
		case client := <-s.Register:
			s.clients[client] = true
			metrics.ConnectedClients.Inc()
			s.log.Info("client connected", zap.String("user_id", client.UserID), zap.Int("count", len(s.clients)))
			s.sendTo(client, s.boardState(client))

		case <-s.TriggerList:
			s.sendPlayerListToAll()

		case client := <-s.Unregister:
			if _, ok := s.clients[client]; !ok {
				continue
			}
			s.drop(client)
			if len(s.clients) == 0 && s.manager.evict(s) {
				s.log.Info("session empty, evicting from memory")
				s.shutdown()
				return
			}
			s.sendPlayerListToAll()

		case msg := <-s.Broadcast:
			s.deliver(msg)

		case <-s.stop:
			s.shutdown()
			return
		}
	}
}

// Close stops the session and waits for Run to exit.
func (s *Session) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown runs on the Run goroutine.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
	s.unsubscribe()
	s.stopSweep()
	// verdicts still in the queue are applied and persisted; their broadcasts are dropped
	s.moderation.Stop()
	for client := range s.clients {
		s.drop(client)
	}
}

func (s *Session) register(c *Client) error {
	select {
	case s.Register <- c:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	}
}

func (s *Session) unregister(c *Client) {
	select {
	case s.Unregister <- c:
	case <-s.closing:
	}
}

func (s *Session) enqueue(msg outbound) {
	select {
	case s.Broadcast <- msg:
	case <-s.closing:
	}
}

func (s *Session) triggerList() {
	select {
	case s.TriggerList <- struct{}{}:
	default:
	}
}

func (s *Session) sendTo(c *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		s.log.Warn("client send buffer full, disconnecting", zap.String("user_id", c.UserID))
		s.drop(c)
	}
}

func (s *Session) drop(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.Send)
	metrics.ConnectedClients.Dec()
}

func (s *Session) deliver(msg outbound) {
	switch {
	case msg.element != nil:
		s.deliverElement(msg.element)
	case msg.resync:
		for client := range s.clients {
			s.sendTo(client, s.boardState(client))
		}
	case msg.client != nil:
		if s.clients[msg.client] {
			s.sendTo(msg.client, msg.data)
		}
	case msg.toUser != "":
		for client := range s.clients {
			if client.UserID == msg.toUser {
				s.sendTo(client, msg.data)
			}
		}
	default:
		for client := range s.clients {
			s.sendTo(client, msg.data)
		}
	}
}

// deliverElement evaluates visibility per client. Viewers that can no longer
// see the element get element_hidden so they drop it from their canvas.
func (s *Session) deliverElement(ev *elementEvent) {
	cfg := s.Config()
	rendered := make(map[whiteboard.Badge][]byte)
	var hidden []byte

	for client := range s.clients {
		viewer := s.Viewer(client.UserID)
		if !whiteboard.IsVisible(ev.el, cfg, viewer) {
			if ev.action == broadcast.EventElementCreated {
				continue
			}
			if hidden == nil {
				hidden = mustJSON(s.log, hiddenMessage{Action: "element_hidden", ElementID: ev.el.ID})
			}
			s.sendTo(client, hidden)
			continue
		}

		badge := whiteboard.BadgeFor(ev.el, cfg, viewer)
		data, ok := rendered[badge]
		if !ok {
			data = mustJSON(s.log, elementMessage{Action: ev.action, Element: ElementView{Element: ev.el, Badge: badge}})
			rendered[badge] = data
		}
		s.sendTo(client, data)
	}
}

func (s *Session) boardState(c *Client) []byte {
	viewer := s.Viewer(c.UserID)
	msg := boardStateMessage{
		Action:      "board_state",
		SessionID:   s.ID,
		IsModerator: viewer.IsModerator,
		Moderation:  s.Config(),
		Elements:    s.Elements(c.UserID),
		Filters:     s.voting.Snapshot(),
	}
	return mustJSON(s.log, msg)
}

type PlayerInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	IsHost      bool   `json:"isHost"`
	IsModerator bool   `json:"isModerator"`
}

func (s *Session) sendPlayerListToAll() {
	seen := make(map[string]bool)
	players := []PlayerInfo{}
	for client := range s.clients {
		if seen[client.UserID] {
			continue
		}
		seen[client.UserID] = true
		players = append(players, PlayerInfo{
			ID:          client.UserID,
			Username:    client.Name(),
			IsHost:      client.UserID == s.HostID,
			IsModerator: s.deps.Authz.IsModerator(client.UserID, s.ID),
		})
	}

	data := mustJSON(s.log, map[string]any{
		"action":  "update_player_list",
		"players": players,
	})
	for client := range s.clients {
		s.sendTo(client, data)
	}
}

func mustJSON(log *zap.Logger, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to encode websocket message", zap.Error(err))
		return nil
	}
	return data
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{ID: s.ID, HostID: s.HostID, Title: s.Title, Moderation: s.Config(), CreatedAt: s.CreatedAt}
}

func (s *Session) Config() policy.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Session) Viewer(userID string) whiteboard.Viewer {
	return whiteboard.Viewer{ID: userID, IsModerator: s.deps.Authz.IsModerator(userID, s.ID)}
}

func (s *Session) requireModerator(userID string) error {
	if !s.deps.Authz.IsModerator(userID, s.ID) {
		return fmt.Errorf("user %s does not moderate session %s: %w", userID, s.ID, apperr.ErrForbidden)
	}
	return nil
}

// Elements returns what userID may see, in z-order.
func (s *Session) Elements(userID string) []ElementView {
	cfg := s.Config()
	viewer := s.Viewer(userID)
	visible := whiteboard.VisibleTo(s.store.ListAll(), cfg, viewer)
	out := make([]ElementView, 0, len(visible))
	for _, el := range visible {
		out = append(out, ElementView{Element: el, Badge: whiteboard.BadgeFor(el, cfg, viewer)})
	}
	return out
}

// Element hides invisible elements behind NotFound.
func (s *Session) Element(userID, id string) (ElementView, error) {
	el, err := s.store.Get(id)
	if err != nil {
		return ElementView{}, err
	}
	cfg := s.Config()
	viewer := s.Viewer(userID)
	if !whiteboard.IsVisible(el, cfg, viewer) {
		return ElementView{}, fmt.Errorf("element %s: %w", id, apperr.ErrNotFound)
	}
	return ElementView{Element: el, Badge: whiteboard.BadgeFor(el, cfg, viewer)}, nil
}

func (s *Session) CreateElement(ctx context.Context, userID string, d element.Draft) (element.Element, error) {
	d.SessionID = s.ID
	d.AuthorID = userID

	s.writeMu.Lock()
	el, err := s.store.Create(d, s.Config())
	if err == nil {
		s.enqueueElement(broadcast.EventElementCreated, el)
	}
	s.writeMu.Unlock()
	if err != nil {
		return element.Element{}, err
	}

	metrics.ElementsCreated.WithLabelValues(el.Type.String()).Inc()
	s.persistAndPublish(ctx, broadcast.EventElementCreated, el)
	return el, nil
}

func (s *Session) UpdateElement(ctx context.Context, userID, id string, p element.Patch) (element.Element, error) {
	if _, err := s.Element(userID, id); err != nil {
		return element.Element{}, err
	}

	s.writeMu.Lock()
	el, err := s.store.Update(id, p, s.Config())
	if err == nil {
		s.enqueueElement(broadcast.EventElementUpdated, el)
	}
	s.writeMu.Unlock()
	if err != nil {
		return element.Element{}, err
	}

	s.persistAndPublish(ctx, broadcast.EventElementUpdated, el)
	return el, nil
}

func (s *Session) Approve(userID, id string) (element.Element, error) {
	if err := s.requireModerator(userID); err != nil {
		return element.Element{}, err
	}
	return s.moderation.Approve(id)
}

func (s *Session) Reject(userID, id string, reason element.ModerationReason) (element.Element, error) {
	if err := s.requireModerator(userID); err != nil {
		return element.Element{}, err
	}
	return s.moderation.Reject(id, reason)
}

func (s *Session) ModerateAll(ctx context.Context, userID string) (moderation.Summary, error) {
	if err := s.requireModerator(userID); err != nil {
		return moderation.Summary{}, err
	}
	return s.moderation.ModerateAllPending(ctx, s.Config())
}

func (s *Session) SetModerationConfig(ctx context.Context, userID string, cfg policy.Config) (policy.Config, error) {
	if err := s.requireModerator(userID); err != nil {
		return policy.Config{}, err
	}
	cfg = s.applyConfig(cfg)
	if err := s.deps.Repo.SaveSession(ctx, s.Info()); err != nil {
		s.log.Error("failed to persist moderation config", zap.Error(err))
	}
	if err := s.deps.Bus.Publish(ctx, s.ID, broadcast.EventModerationConfig, cfg); err != nil {
		s.log.Warn("failed to publish moderation config", zap.Error(err))
	}
	s.log.Info("moderation config changed",
		zap.String("by", userID),
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("auto", cfg.AutoModerate),
		zap.Int("sensitivity", cfg.Sensitivity),
	)
	return cfg, nil
}

// applyConfig swaps the config and re-renders every client, since visibility
// may have changed for any element.
func (s *Session) applyConfig(cfg policy.Config) policy.Config {
	cfg = cfg.Normalized()
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.enqueue(outbound{resync: true})
	return cfg
}

func (s *Session) Filters() voting.Snapshot {
	return s.voting.Snapshot()
}

func (s *Session) Vote(ctx context.Context, userID, filterID string) (voting.Snapshot, error) {
	changed, err := s.voting.Vote(userID, filterID)
	if err != nil {
		return voting.Snapshot{}, err
	}
	if changed {
		s.filtersChanged()
		s.publish(ctx, broadcast.EventVote, votePayload{ParticipantID: userID, FilterID: filterID})
	}
	return s.voting.Snapshot(), nil
}

func (s *Session) Unvote(ctx context.Context, userID string) (voting.Snapshot, error) {
	changed, err := s.voting.Unvote(userID)
	if err != nil {
		return voting.Snapshot{}, err
	}
	if changed {
		s.filtersChanged()
		s.publish(ctx, broadcast.EventUnvote, votePayload{ParticipantID: userID})
	}
	return s.voting.Snapshot(), nil
}

func (s *Session) flushEffects() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.effectsMu.Lock()
	pending := s.effects
	s.effects = nil
	s.effectsMu.Unlock()

	for _, msg := range pending {
		s.enqueue(msg)
	}
}

func (s *Session) queueEffect(msg outbound) {
	s.effectsMu.Lock()
	s.effects = append(s.effects, msg)
	s.effectsMu.Unlock()
}

func (s *Session) filtersChanged() {
	s.flushEffects()
	s.enqueue(outbound{data: mustJSON(s.log, filtersMessage{Action: "filters_updated", Filters: s.voting.Snapshot()})})
}

// join makes the user a voting participant on their first connection to this
// instance. AddParticipant reports a conflict when another instance already
// brought them in.
func (s *Session) join(c *Client) {
	s.presenceMu.Lock()
	s.presence[c.UserID]++
	first := s.presence[c.UserID] == 1
	s.presenceMu.Unlock()

	if first {
		if err := s.voting.AddParticipant(c.UserID, c.UserID); err != nil && !errors.Is(err, apperr.ErrConflict) {
			s.log.Warn("failed to add participant", zap.String("user_id", c.UserID), zap.Error(err))
		}
		s.publish(context.Background(), broadcast.EventParticipantJoin, participantPayload{ParticipantID: c.UserID})
		s.filtersChanged()
	}
	s.triggerList()
}

// leave tells the other instances once the user's last local connection is
// gone, and drops the user's votes when no instance serves them any more.
func (s *Session) leave(c *Client) {
	s.presenceMu.Lock()
	s.presence[c.UserID]--
	last := s.presence[c.UserID] <= 0
	if last {
		delete(s.presence, c.UserID)
	}
	gone := last && !s.presentLocked(c.UserID)
	s.presenceMu.Unlock()

	if !last {
		return
	}
	s.publish(context.Background(), broadcast.EventParticipantLeave, participantPayload{ParticipantID: c.UserID})
	if gone {
		s.removeParticipant(c.UserID)
	}
}

// presentLocked reports whether userID is connected to any instance. The
// caller holds presenceMu.
func (s *Session) presentLocked(userID string) bool {
	return s.presence[userID] > 0 || len(s.remote[userID]) > 0
}

func (s *Session) localUsers() []string {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	users := make([]string, 0, len(s.presence))
	for id := range s.presence {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (s *Session) remoteJoined(origin, userID string) {
	s.presenceMu.Lock()
	if s.remote[userID] == nil {
		s.remote[userID] = make(map[string]struct{})
	}
	s.remote[userID][origin] = struct{}{}
	s.presenceMu.Unlock()

	if err := s.voting.AddParticipant(userID, userID); err == nil {
		s.filtersChanged()
	}
}

func (s *Session) remoteLeft(origin, userID string) {
	s.presenceMu.Lock()
	delete(s.remote[userID], origin)
	if len(s.remote[userID]) == 0 {
		delete(s.remote, userID)
	}
	gone := !s.presentLocked(userID)
	s.presenceMu.Unlock()

	if gone {
		s.removeParticipant(userID)
	}
}

func (s *Session) removeParticipant(userID string) {
	if err := s.voting.RemoveParticipant(userID); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn("failed to remove participant", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	s.filtersChanged()
}

// applySync merges another instance's view of the session. Ballots only fill
// in participants that have none here, so a sync never undoes a newer vote.
func (s *Session) applySync(origin string, p syncPayload) {
	for _, userID := range p.Participants {
		s.remoteJoined(origin, userID)
	}

	local := s.voting.Ballots()
	voters := make([]string, 0, len(p.Ballots))
	for id := range p.Ballots {
		voters = append(voters, id)
	}
	sort.Strings(voters)

	changed := false
	for _, id := range voters {
		if _, ok := local[id]; ok {
			continue
		}
		if ok, err := s.voting.Vote(id, p.Ballots[id]); err == nil && ok {
			changed = true
		}
	}
	if changed {
		s.filtersChanged()
	}
}

func (s *Session) onModeration(d moderation.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.writeMu.Lock()
	s.enqueueElement(broadcast.EventElementModerated, d.Element)
	s.writeMu.Unlock()
	s.persistAndPublish(ctx, broadcast.EventElementModerated, d.Element)

	if d.Source == moderation.SourceAuto && d.Element.ModerationStatus == element.StatusFlagged && s.deps.Alerts != nil {
		s.deps.Alerts.Dispatch(notification.Alert{
			SessionID: s.ID,
			ElementID: d.Element.ID,
			AuthorID:  d.Element.AuthorID,
			Status:    d.Element.ModerationStatus.String(),
			Reason:    d.Element.ModerationReason.String(),
			Excerpt:   d.Element.Text,
		})
	}
}

func (s *Session) enqueueElement(action string, el element.Element) {
	s.enqueue(outbound{element: &elementEvent{action: action, el: el}})
}

func (s *Session) persistAndPublish(ctx context.Context, action string, el element.Element) {
	if err := s.deps.Repo.SaveElement(ctx, el); err != nil {
		s.log.Error("failed to persist element", zap.String("element_id", el.ID), zap.Error(err))
	}
	s.publish(ctx, action, el)
}

func (s *Session) publish(ctx context.Context, eventType string, payload any) {
	if err := s.deps.Bus.Publish(ctx, s.ID, eventType, payload); err != nil {
		s.log.Warn("failed to publish session event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// onRemote applies events published by other instances. Element events are
// merged with element.Merge; vote events are replayed so every replica computes
// the same active filter.
func (s *Session) onRemote(ev broadcast.Event) {
	if ev.Origin == s.deps.InstanceID {
		return
	}
	log := s.log.With(zap.String("event_type", ev.Type), zap.String("origin", ev.Origin))

	switch ev.Type {
	case broadcast.EventElementCreated, broadcast.EventElementUpdated, broadcast.EventElementModerated:
		var el element.Element
		if err := ev.Decode(&el); err != nil {
			log.Warn("dropping remote element event", zap.Error(err))
			return
		}
		s.writeMu.Lock()
		if merged, changed := s.store.ApplyRemote(el); changed {
			s.enqueueElement(ev.Type, merged)
		}
		s.writeMu.Unlock()

	case broadcast.EventModerationConfig:
		var cfg policy.Config
		if err := ev.Decode(&cfg); err != nil {
			log.Warn("dropping remote config event", zap.Error(err))
			return
		}
		s.applyConfig(cfg)

	case broadcast.EventParticipantJoin:
		var p participantPayload
		if err := ev.Decode(&p); err != nil {
			log.Warn("dropping remote join", zap.Error(err))
			return
		}
		s.remoteJoined(ev.Origin, p.ParticipantID)

	case broadcast.EventParticipantLeave:
		var p participantPayload
		if err := ev.Decode(&p); err != nil {
			log.Warn("dropping remote leave", zap.Error(err))
			return
		}
		s.remoteLeft(ev.Origin, p.ParticipantID)

	case broadcast.EventSyncRequest:
		s.publish(context.Background(), broadcast.EventSyncState, syncPayload{
			Participants: s.localUsers(),
			Ballots:      s.voting.Ballots(),
		})

	case broadcast.EventSyncState:
		var p syncPayload
		if err := ev.Decode(&p); err != nil {
			log.Warn("dropping remote sync", zap.Error(err))
			return
		}
		s.applySync(ev.Origin, p)

	case broadcast.EventVote, broadcast.EventUnvote:
		var v votePayload
		if err := ev.Decode(&v); err != nil {
			log.Warn("dropping remote vote", zap.Error(err))
			return
		}
		var (
			changed bool
			err     error
		)
		if ev.Type == broadcast.EventVote {
			changed, err = s.voting.Vote(v.ParticipantID, v.FilterID)
		} else {
			changed, err = s.voting.Unvote(v.ParticipantID)
		}
		if err != nil {
			log.Debug("remote vote not applied", zap.Error(err))
			return
		}
		if changed {
			s.filtersChanged()
		}

	default:
		log.Debug("ignoring unknown session event")
	}
}

// sessionEffects treats a participant id as its media stream and tells that
// participant's clients which filter to render.
type sessionEffects struct {
	s *Session
}

func (e sessionEffects) ApplyFilter(stream voting.Stream, filterID string, strength float64) error {
	userID, ok := stream.(string)
	if !ok {
		return fmt.Errorf("unexpected media stream %T", stream)
	}
	e.s.queueEffect(outbound{toUser: userID, data: mustJSON(e.s.log, filterEffectMessage{
		Action:   "filter_applied",
		FilterID: filterID,
		Strength: strength,
	})})
	return nil
}

func (e sessionEffects) RemoveFilters(stream voting.Stream) error {
	userID, ok := stream.(string)
	if !ok {
		return fmt.Errorf("unexpected media stream %T", stream)
	}
	e.s.queueEffect(outbound{toUser: userID, data: mustJSON(e.s.log, filterEffectMessage{Action: "filter_removed"})})
	return nil
}
