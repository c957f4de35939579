// Demo authoritative server: runs the simulation tick, drives the
// replication graph, and streams each connection's gathered entity list
// over a websocket. The wire format here is demo plumbing; the engine's
// contract ends at the gathered lists.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/Kungya/NebulaReplicationGraph/internal/repgraph"
	"github.com/Kungya/NebulaReplicationGraph/internal/settings"
	"github.com/Kungya/NebulaReplicationGraph/internal/world"
)

const (
	writeWait      = 5 * time.Second
	npcCount       = 24
	pickupCount    = 12
	wanderSpeed    = 600.0
	worldBounds    = 140000.0
	heroWanderArea = 500.0
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

type session struct {
	conn   *websocket.Conn
	handle *repgraph.ConnectionHandle
	// Entities spawned for this client, despawned on disconnect.
	owned []*repgraph.Entity
	mu    sync.Mutex
}

func (s *session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Server owns the registry, the graph, and the live sessions. All graph
// mutation happens on the tick goroutine or between ticks under mu.
type Server struct {
	mu       sync.Mutex
	cfg       *settings.Settings
	registry  *world.Registry
	graph     *repgraph.Graph
	mover     *world.Mover
	heroMover *world.Mover
	sessions  map[string]*session
	nextID   int
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func newServer(cfg *settings.Settings, table repgraph.Table, log *logrus.Logger) *Server {
	registry := world.NewRegistry()
	graph := repgraph.New(cfg, world.DefaultTypes(), table, registry.PlayerStates, log)
	graph.SetExplicitClassInfo(world.TypeCharacter, repgraph.ClassReplicationInfo{
		CullDistance:            15000,
		ReplicationPeriodFrames: 1,
		ChannelFrameTimeout:     4,
		DistancePriorityScale:   1,
		StarvationPriorityScale: 1,
	})

	s := &Server{
		cfg:      cfg,
		registry: registry,
		graph:    graph,
		mover:    world.NewMover(time.Now().UnixNano(), wanderSpeed, worldBounds),
		// Heroes wander a tight area around spawn so they stay inside the
		// visibility table's coverage.
		heroMover: world.NewMover(time.Now().UnixNano()+1, wanderSpeed, heroWanderArea),
		sessions:  make(map[string]*session),
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:       log,
	}
	s.seedWorld()
	return s
}

func (s *Server) spawn(id string, typeID repgraph.TypeID, pos repgraph.Vec2, level string) *repgraph.Entity {
	e := &repgraph.Entity{ID: id, Type: typeID, Position: pos, StreamingLevel: level}
	s.registry.Add(e)
	s.graph.OnEntityAdded(e)
	return e
}

func (s *Server) despawn(e *repgraph.Entity) {
	s.graph.OnEntityRemoved(e)
	s.registry.Remove(e.ID)
}

func (s *Server) seedWorld() {
	s.spawn("game-state", world.TypeGameState, repgraph.Vec2{}, "")
	for i := 0; i < npcCount; i++ {
		s.spawn(fmt.Sprintf("npc-%d", i), world.TypeCharacter, repgraph.Vec2{
			X: float64(i%6)*180 - 500,
			Y: float64(i/6)*180 - 500,
		}, "")
	}
	for i := 0; i < pickupCount; i++ {
		s.spawn(fmt.Sprintf("pickup-%d", i), world.TypePickup, repgraph.Vec2{
			X: float64(i)*2500 - 15000,
			Y: -4000,
		}, "")
	}
}

// handleJoin spawns the default controllable set for a new client: hero
// pawn, controller, and player state, then wires the connection's viewer.
func (s *Server) handleJoin(conn *websocket.Conn) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	playerID := fmt.Sprintf("player-%d", s.nextID)

	handle := s.graph.RegisterConnection()
	pawn := s.spawn(playerID+"-pawn", world.TypeHeroCharacter, repgraph.Vec2{X: 50, Y: 50}, "")
	controller := s.spawn(playerID+"-controller", world.TypePlayerController, pawn.Position, "")
	playerState := s.spawn(playerID+"-state", world.TypePlayerState, repgraph.Vec2{}, "")

	handle.Connection().SetViewers([]repgraph.Viewer{{
		Controller:  controller,
		ViewTarget:  pawn,
		Pawn:        pawn,
		PlayerState: playerState,
	}})

	sess := &session{
		conn:   conn,
		handle: handle,
		owned:  []*repgraph.Entity{pawn, controller, playerState},
	}
	s.sessions[handle.ID()] = sess
	s.log.WithFields(logrus.Fields{"player": playerID, "conn": handle.ID()}).Info("player joined")
	return sess
}

func (s *Server) handleLeave(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.handle.ID()]; !ok {
		return
	}
	delete(s.sessions, sess.handle.ID())
	for _, e := range sess.owned {
		s.despawn(e)
	}
	sess.handle.Release()
	sess.conn.Close()
	s.log.WithField("conn", sess.handle.ID()).Info("player left")
}

type clientMessage struct {
	Type  string `json:"type"`
	Level string `json:"level,omitempty"`
}

type relevancyEntity struct {
	ID       string        `json:"id"`
	Position repgraph.Vec2 `json:"position"`
}

type relevancyMessage struct {
	Type      string            `json:"type"`
	Tick      uint64            `json:"t"`
	Entities  []relevancyEntity `json:"entities"`
	Destroyed []string          `json:"destroyed,omitempty"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	sess := s.handleJoin(conn)

	go func() {
		defer s.handleLeave(sess)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			s.mu.Lock()
			switch msg.Type {
			case "levelVisible":
				sess.handle.Connection().OnLevelVisible(msg.Level)
			case "levelHidden":
				sess.handle.Connection().OnLevelHidden(msg.Level)
			}
			s.mu.Unlock()
		}
	}()
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.graph.Stats().Snapshot())
}

// run drives the fixed-rate tick loop until the stop channel closes.
func (s *Server) run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			if dt <= 0 {
				dt = 1.0 / float64(s.cfg.TickRate)
			}
			last = now
			s.tick(dt)
		}
	}
}

func (s *Server) tick(dt float64) {
	s.mu.Lock()
	s.mover.Step(s.registry.OfType(world.TypeCharacter), dt)
	s.heroMover.Step(s.registry.OfType(world.TypeHeroCharacter), dt)

	s.graph.Prepare()

	type outbound struct {
		sess *session
		data []byte
	}
	var sends []outbound
	for _, conn := range s.graph.Connections() {
		gathered := s.graph.GatherForConnection(conn)
		msg := relevancyMessage{
			Type:      "relevancy",
			Tick:      s.graph.Frame(),
			Entities:  make([]relevancyEntity, 0, len(gathered)),
			Destroyed: conn.DrainDestroyed(),
		}
		for _, e := range gathered {
			msg.Entities = append(msg.Entities, relevancyEntity{ID: e.ID, Position: e.Position})
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.log.WithError(err).Warn("failed to marshal relevancy message")
			continue
		}
		if sess, ok := s.sessions[conn.ID()]; ok {
			sends = append(sends, outbound{sess: sess, data: data})
		}
	}
	s.mu.Unlock()

	for _, out := range sends {
		if err := out.sess.write(out.data); err != nil {
			s.log.WithError(err).Warn("failed to send relevancy update")
			go s.handleLeave(out.sess)
		}
	}
}

func main() {
	var (
		addr        string
		configPath  string
		profileMode bool
	)
	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.StringVar(&configPath, "config", "", "path to settings YAML (defaults when empty)")
	flag.BoolVar(&profileMode, "profile", false, "write a CPU profile to the working directory")
	flag.Parse()

	log := newLogger()

	if profileMode {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	cfg := settings.Default()
	if configPath != "" {
		loaded, err := settings.Load(configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load settings")
		}
		cfg = loaded
	}
	if !cfg.Enabled {
		log.Fatal("replication graph is disabled via settings")
	}

	var table repgraph.Table
	if cfg.PVSTablePath != "" {
		loaded, err := repgraph.LoadTable(cfg.PVSTablePath)
		if err != nil {
			log.WithError(err).Fatal("failed to load pvs table")
		}
		table = loaded
	} else {
		table = repgraph.DefaultTable()
	}
	if asymmetric := table.Validate(log.WithField("component", "pvs-table")); asymmetric > 0 {
		log.WithField("pairs", asymmetric).Warn("pvs table has asymmetric visibility")
	}

	server := newServer(cfg, table, log)
	server.graph.LogRoutingPolicies()

	stop := make(chan struct{})
	go server.run(stop)

	http.HandleFunc("/ws", server.serveWS)
	http.HandleFunc("/stats", server.serveStats)

	log.WithField("addr", addr).Info("replication graph server listening")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
