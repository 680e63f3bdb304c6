package meilisync

import (
	"fmt"
	"strconv"
	"time"
)

// Default connection and sync settings.
const (
	DefaultHost      = "localhost"
	DefaultPort      = 7700
	DefaultBatchSize = 1000
)

// Settings is the process-wide synchronization configuration.
type Settings struct {
	HTTPS        bool
	Host         string
	Port         int
	MasterKey    string
	Timeout      time.Duration // zero uses the remote client default
	ClientAgents []string
	// Debug waits for every hook task and reports failures to the caller.
	Debug bool
	// Sync waits for every remote task inside the remote client.
	Sync bool
	// Offline disables all remote calls.
	Offline   bool
	BatchSize int
}

// DefaultSettings returns settings for a local engine.
func DefaultSettings() Settings {
	return Settings{
		Host:      DefaultHost,
		Port:      DefaultPort,
		BatchSize: DefaultBatchSize,
	}
}

// URL is the engine base URL derived from HTTPS, Host and Port.
func (s Settings) URL() string {
	scheme := "http"
	if s.HTTPS {
		scheme = "https"
	}
	host := s.Host
	if host == "" {
		host = DefaultHost
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return scheme + "://" + host + ":" + strconv.Itoa(port)
}

func (s *Settings) applyDefaults() {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
}

func (s Settings) validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("meilisync: invalid port %d", s.Port)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("meilisync: negative timeout %s", s.Timeout)
	}
	return nil
}
