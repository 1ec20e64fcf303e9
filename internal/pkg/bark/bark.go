package bark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultServer = "https://day.app"

// ConfigFunc supplies the current Bark settings. It runs on every push so
// config changes take effect without a restart.
type ConfigFunc func() (key, server, site string)

// Service sends iOS push notifications through a Bark server.
type Service struct {
	settings ConfigFunc
	client   *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
	window   time.Duration
}

func New(settings ConfigFunc) *Service {
	return &Service{
		settings: settings,
		client:   &http.Client{Timeout: 10 * time.Second},
		lastSent: make(map[string]time.Time),
		window:   10 * time.Minute,
	}
}

type pushPayload struct {
	Key      string `json:"device_key"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
	Group    string `json:"group,omitempty"`
}

// Push sends a notification immediately, without throttling.
func (s *Service) Push(title, body string) error {
	key, server, site := s.settings()
	if key == "" {
		return errors.New("bark device key not configured")
	}
	if server == "" {
		server = defaultServer
	}

	return s.send(server, pushPayload{
		Key:      key,
		Title:    fmt.Sprintf("[%s] %s", site, title),
		Body:     body,
		Category: site,
		Group:    site,
	})
}

func (s *Service) send(server string, payload pushPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(server+"/push", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ThrottlePush notifies about a rate-limit hit, at most once per window for
// each ip+path pair.
func (s *Service) ThrottlePush(ip, path string) {
	if key, _, _ := s.settings(); key == "" {
		return
	}
	if !s.claimWindow(ip + "|" + path) {
		return
	}
	_ = s.Push("检测到异常流量", fmt.Sprintf("IP: %s Path: %s", ip, path))
}

// claimWindow records a send for the key unless one already happened inside
// the throttle window.
func (s *Service) claimWindow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && time.Since(last) < s.window {
		return false
	}
	s.lastSent[key] = time.Now()
	return true
}
