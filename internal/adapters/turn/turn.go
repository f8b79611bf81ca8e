// Package turn runs an optional embedded TURN relay so students behind
// symmetric NATs can still reach the teacher.
package turn

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"sync"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/pion/turn/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoUsers = errors.New("turn: no users configured")

var userPair = regexp.MustCompile(`(\w+)=(\w+)`)

type Server struct {
	cfg config.TURNConfig

	mu     sync.Mutex
	server *turn.Server
	user   string
	pass   string
}

func New(cfg config.TURNConfig) *Server {
	return &Server{cfg: cfg}
}

// parseUsers turns "a=1,b=2" into long-term credential keys.
func parseUsers(users, realm string) (map[string][]byte, string, string) {
	keys := map[string][]byte{}
	var firstUser, firstPass string
	for _, kv := range userPair.FindAllStringSubmatch(users, -1) {
		keys[kv[1]] = turn.GenerateAuthKey(kv[1], realm, kv[2])
		if firstUser == "" {
			firstUser, firstPass = kv[1], kv[2]
		}
	}
	return keys, firstUser, firstPass
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	keys, user, pass := parseUsers(s.cfg.Users, s.cfg.Realm)
	if len(keys) == 0 {
		return ErrNoUsers
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("turn listen: %w", err)
	}

	srv, err := turn.NewServer(turn.ServerConfig{
		Realm: s.cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			key, ok := keys[username]
			return key, ok
		},
		PacketConnConfigs: []turn.PacketConnConfig{{
			PacketConn: conn,
			RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
				RelayAddress: net.ParseIP(s.cfg.PublicIP),
				Address:      "0.0.0.0",
			},
		}},
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("turn server: %w", err)
	}

	s.server, s.user, s.pass = srv, user, pass
	log.Info().Str("module", "turn").Int("port", s.cfg.Port).Str("public_ip", s.cfg.PublicIP).Msg("TURN server started")
	return nil
}

// ICEServer is what clients should add to their ICE configuration.
func (s *Server) ICEServer() config.ICEServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.ICEServer{
		URLs:       []string{fmt.Sprintf("turn:%s:%d?transport=udp", s.cfg.PublicIP, s.cfg.Port)},
		Username:   s.user,
		Credential: s.pass,
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	log.Info().Str("module", "turn").Msg("TURN server stopped")
	return err
}
