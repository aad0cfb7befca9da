package app

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"wushik/internal/config"

	"github.com/form3tech-oss/jwt-go"
)

const (
	VoiceActionLogin = "login"
	VoiceActionJoin  = "join"
)

// DefaultVoiceTokenTTL is how long an issued voice token stays valid.
const DefaultVoiceTokenTTL = 90 * time.Second

var ErrVoiceNotConfigured = errors.New("voice credentials are not configured")

// VoiceService signs tokens for the voice channel a table's announcements and
// chat run on.
type VoiceService struct {
	cfg config.VoiceConfig
	ttl time.Duration
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewVoiceService builds a token signer from the voice configuration.
func NewVoiceService(cfg config.VoiceConfig) *VoiceService {
	return &VoiceService{
		cfg: cfg,
		ttl: DefaultVoiceTokenTTL,
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ChannelForGame names the voice channel of a game.
func ChannelForGame(gameID string) string {
	return "wushik-" + gameID
}

// GenerateToken signs a login token for user, or a join token for channel.
func (s *VoiceService) GenerateToken(user, action, channel string) (string, error) {
	if user == "" {
		return "", fmt.Errorf("user is required")
	}
	if s.cfg.Secret == "" || s.cfg.Issuer == "" || s.cfg.Domain == "" {
		return "", ErrVoiceNotConfigured
	}

	from := s.userURI(user)
	var to string
	switch action {
	case VoiceActionLogin:
		to = from
	case VoiceActionJoin:
		if channel == "" {
			return "", fmt.Errorf("channel is required for join tokens")
		}
		to = s.channelURI(channel)
	default:
		return "", fmt.Errorf("unsupported voice action: %s", action)
	}

	now := s.now()
	s.mu.Lock()
	nonce := s.rng.Int63()
	s.mu.Unlock()

	claims := jwt.MapClaims{
		"iss": s.cfg.Issuer,
		"sub": user,
		"exp": now.Add(s.ttl).Unix(),
		"vxa": action,
		"vxi": fmt.Sprintf("%d-%d", now.UnixNano(), nonce),
		"f":   from,
		"t":   to,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

func (s *VoiceService) userURI(user string) string {
	return "sip:." + s.cfg.Issuer + "." + user + ".@" + s.cfg.Domain
}

func (s *VoiceService) channelURI(channel string) string {
	return "sip:confctl-g-" + channel + "@" + s.cfg.Domain
}
